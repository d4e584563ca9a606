package hub

import "encoding/json"

// Envelope is the JSON frame for every message crossing the socket,
// in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound message kinds.
const (
	MsgAuth        = "auth"
	MsgChat        = "chat"
	MsgStreamStart = "stream_start"
	MsgStreamStop  = "stream_stop"
	MsgPing        = "ping"
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
)

// Outbound message kinds.
const (
	MsgConnected    = "connected"
	MsgAuthSuccess  = "auth_success"
	MsgAuthFailed   = "auth_failed"
	MsgChatResponse = "chat_response"
	MsgStreamChunk  = "stream_chunk"
	MsgStreamEnd    = "stream_end"
	MsgPong         = "pong"
	MsgEvent        = "event"
	MsgError        = "error"
	MsgMetrics      = "metrics"
	MsgAgentStatus  = "agent_status"
	MsgModelStatus  = "model_status"
)

// Error codes carried in error envelopes.
const (
	CodeAuthRequired = "auth_required"
	CodeBadPayload   = "bad_payload"
	CodeUnknownType  = "unknown_type"
	CodeStreamBusy   = "stream_busy"
)

type AuthPayload struct {
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
}

type ChatPayload struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	Quality  string  `json:"quality,omitempty"`
}

type TopicPayload struct {
	Topic string `json:"topic"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

type AuthResultPayload struct {
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type ChatResponsePayload struct {
	Text       string `json:"text"`
	Audio      []byte `json:"audio"`
	Provider   string `json:"provider"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int    `json:"duration_ms"`
	Cached     bool   `json:"cached"`
}

type StreamChunkPayload struct {
	Seq        int    `json:"seq"`
	Audio      []byte `json:"audio"`
	SampleRate int    `json:"sample_rate"`
}

type StreamEndPayload struct {
	Seq      int    `json:"seq"`
	Provider string `json:"provider"`
	Stopped  bool   `json:"stopped"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// envelope marshals a typed payload into a ready-to-send frame.
func envelope(kind string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}
