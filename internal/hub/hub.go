package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/leafline-ai/voiced/internal/config"
	"github.com/leafline-ai/voiced/internal/synth"
)

// Publisher receives a copy of hub events for the platform bus.
type Publisher func(subject string, payload []byte)

// Hub owns the connection registry and the topic index. Every mutation
// of registry and index happens under one lock acquisition, so a
// connection's topic set and the index always agree.
type Hub struct {
	cfg    config.HubConfig
	synth  *synth.Synthesizer
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	topics map[string]map[string]*Connection

	publish Publisher

	connCounter metric.Int64Counter
	dropCounter metric.Int64Counter
}

func New(cfg config.HubConfig, syn *synth.Synthesizer, logger *slog.Logger) (*Hub, error) {
	meter := otel.Meter("voiced/hub")
	connCounter, err := meter.Int64Counter("voiced_hub_connections_total",
		metric.WithDescription("Accepted hub connections"))
	if err != nil {
		return nil, err
	}
	dropCounter, err := meter.Int64Counter("voiced_hub_send_failures_total",
		metric.WithDescription("Recipients dropped after a failed delivery"))
	if err != nil {
		return nil, err
	}
	return &Hub{
		cfg:         cfg,
		synth:       syn,
		logger:      logger.With(slog.String("component", "hub")),
		conns:       make(map[string]*Connection),
		topics:      make(map[string]map[string]*Connection),
		connCounter: connCounter,
		dropCounter: dropCounter,
	}, nil
}

// SetPublisher attaches an optional event bridge. Call before serving.
func (h *Hub) SetPublisher(p Publisher) { h.publish = p }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn := h.Attach(sock)
	h.ReadLoop(r.Context(), conn)
}

// Attach registers a socket, starts its writer and greets the client.
func (h *Hub) Attach(sock socket) *Connection {
	conn := newConnection(uuid.NewString(), sock, h.cfg.SendBuffer,
		time.Duration(h.cfg.WriteTimeoutMS)*time.Millisecond)
	if h.cfg.MaxMessageBytes > 0 {
		sock.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	go conn.writeLoop(func() { h.Disconnect(conn.ID) })

	conn.sendEnvelope(MsgConnected, ConnectedPayload{ConnectionID: conn.ID})
	h.connCounter.Add(context.Background(), 1)
	h.logger.Info("connection attached", slog.String("connection_id", conn.ID))
	return conn
}

// ReadLoop pumps inbound frames until the socket closes. Messages on one
// connection are handled in arrival order.
func (h *Hub) ReadLoop(ctx context.Context, conn *Connection) {
	defer h.Disconnect(conn.ID)
	for {
		_, frame, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			conn.sendError(CodeBadPayload, "malformed message frame")
			continue
		}
		h.Handle(ctx, conn, env)
	}
}

// Handle dispatches one inbound envelope. Every kind except ping and
// auth itself requires a prior successful auth.
func (h *Hub) Handle(ctx context.Context, conn *Connection, env Envelope) {
	switch env.Type {
	case MsgPing:
		conn.sendEnvelope(MsgPong, PongPayload{Timestamp: time.Now().UnixMilli()})
		return
	case MsgAuth:
		var p AuthPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			conn.sendError(CodeBadPayload, "malformed auth payload")
			return
		}
		h.Authenticate(conn, p.Token, p.UserID)
		return
	}

	if !h.authenticated(conn) {
		conn.sendError(CodeAuthRequired, "authenticate before sending "+env.Type)
		return
	}

	switch env.Type {
	case MsgSubscribe:
		var p TopicPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Topic == "" {
			conn.sendError(CodeBadPayload, "subscribe requires a topic")
			return
		}
		h.Subscribe(conn, p.Topic)
	case MsgUnsubscribe:
		var p TopicPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Topic == "" {
			conn.sendError(CodeBadPayload, "unsubscribe requires a topic")
			return
		}
		h.Unsubscribe(conn, p.Topic)
	case MsgChat:
		var p ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Text == "" {
			conn.sendError(CodeBadPayload, "chat requires text")
			return
		}
		go h.respondChat(ctx, conn, p)
	case MsgStreamStart:
		var p ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Text == "" {
			conn.sendError(CodeBadPayload, "stream_start requires text")
			return
		}
		go h.streamChat(ctx, conn, p)
	case MsgStreamStop:
		// No-op when nothing is streaming.
		if conn.streaming.Load() {
			conn.streamStop.Store(true)
		}
	default:
		conn.sendError(CodeUnknownType, "unsupported message type "+env.Type)
	}
}

// Authenticate checks the shared token. An empty configured token leaves
// the hub open, which is the development default.
func (h *Hub) Authenticate(conn *Connection, token, userID string) bool {
	ok := h.cfg.AuthToken == "" || token == h.cfg.AuthToken
	h.mu.Lock()
	if ok {
		conn.authed = true
		conn.userID = userID
	}
	h.mu.Unlock()

	if !ok {
		conn.sendEnvelope(MsgAuthFailed, AuthResultPayload{Reason: "invalid token"})
		h.logger.Warn("auth rejected", slog.String("connection_id", conn.ID))
		return false
	}
	conn.sendEnvelope(MsgAuthSuccess, AuthResultPayload{UserID: userID})
	return true
}

// Subscribe adds the connection to a topic. Repeat calls are no-ops.
func (h *Hub) Subscribe(conn *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return
	}
	conn.topics[topic] = struct{}{}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[string]*Connection)
		h.topics[topic] = set
	}
	set[conn.ID] = conn
}

// Unsubscribe removes the connection from a topic. Unknown topics and
// repeat calls are no-ops.
func (h *Hub) Unsubscribe(conn *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropTopicLocked(conn, topic)
}

func (h *Hub) dropTopicLocked(conn *Connection, topic string) {
	delete(conn.topics, topic)
	if set, ok := h.topics[topic]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Broadcast delivers an envelope to every subscriber of a topic and
// reports how many accepted it. A recipient whose buffer is full or
// whose socket died is removed; the others still get the message.
func (h *Hub) Broadcast(topic, kind string, payload any) int {
	frame, err := envelope(kind, payload)
	if err != nil {
		h.logger.Warn("broadcast encode failed", slog.String("error", err.Error()))
		return 0
	}

	h.mu.Lock()
	var failed []*Connection
	delivered := 0
	for _, conn := range h.topics[topic] {
		if conn.enqueue(frame) {
			delivered++
		} else {
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		h.removeLocked(conn)
	}
	h.mu.Unlock()

	for _, conn := range failed {
		conn.close()
		h.dropCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
		h.logger.Warn("subscriber dropped during broadcast",
			slog.String("connection_id", conn.ID), slog.String("topic", topic))
	}
	if h.publish != nil {
		h.publish("voiced.hub."+kind, frame)
	}
	return delivered
}

// System topics server-pushed envelopes go out on.
const (
	TopicMetrics = "metrics"
	TopicSystem  = "system"
)

// BroadcastMetrics pushes pipeline statistics to metrics subscribers.
func (h *Hub) BroadcastMetrics(payload any) int {
	return h.Broadcast(TopicMetrics, MsgMetrics, payload)
}

// AnnounceModelStatus reports voice model availability on the system topic.
func (h *Hub) AnnounceModelStatus(payload any) int {
	return h.Broadcast(TopicSystem, MsgModelStatus, payload)
}

// AnnounceAgentStatus reports service lifecycle changes on the system topic.
func (h *Hub) AnnounceAgentStatus(payload any) int {
	return h.Broadcast(TopicSystem, MsgAgentStatus, payload)
}

// Disconnect tears a connection down and clears its topic memberships.
// Safe to call more than once.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		h.removeLocked(conn)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.close()
	h.logger.Info("connection closed", slog.String("connection_id", id))
}

func (h *Hub) removeLocked(conn *Connection) {
	delete(h.conns, conn.ID)
	for topic := range conn.topics {
		h.dropTopicLocked(conn, topic)
	}
}

func (h *Hub) authenticated(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return conn.authed
}

// ConnectionCount reports attached connections for the status surface.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Topics lists active topics with subscriber counts.
func (h *Hub) Topics() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.topics))
	for topic, set := range h.topics {
		out[topic] = len(set)
	}
	return out
}

// SubscribersOf returns subscriber connection ids in stable order.
func (h *Hub) SubscribersOf(topic string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.topics[topic]))
	for id := range h.topics[topic] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) respondChat(ctx context.Context, conn *Connection, p ChatPayload) {
	res := h.synth.Synthesize(ctx, synth.Request{
		SessionID: conn.ID,
		Text:      p.Text,
		VoiceID:   h.sessionVoice(conn, p.VoiceID),
		Language:  p.Language,
		Speed:     p.Speed,
		Pitch:     p.Pitch,
		Quality:   p.Quality,
	})
	conn.sendEnvelope(MsgChatResponse, ChatResponsePayload{
		Text:       p.Text,
		Audio:      res.Audio,
		Provider:   res.Provider,
		SampleRate: res.SampleRate,
		DurationMS: res.DurationMS,
		Cached:     res.Cached,
	})
}

func (h *Hub) streamChat(ctx context.Context, conn *Connection, p ChatPayload) {
	conn.streaming.Store(true)
	defer conn.streaming.Store(false)
	conn.streamStop.Store(false)
	res := h.synth.Synthesize(ctx, synth.Request{
		SessionID: conn.ID,
		Text:      p.Text,
		VoiceID:   h.sessionVoice(conn, p.VoiceID),
		Language:  p.Language,
		Speed:     p.Speed,
		Pitch:     p.Pitch,
		Quality:   p.Quality,
	})

	pcm, err := synth.DecodeWAV(res.Audio)
	if err != nil {
		conn.sendError(CodeBadPayload, "stream decode failed")
		return
	}
	seq := 0
	stopped := false
	for _, chunk := range h.synth.ChunkPCM(pcm) {
		if conn.streamStop.Load() {
			stopped = true
			break
		}
		conn.sendEnvelope(MsgStreamChunk, StreamChunkPayload{
			Seq:        seq,
			Audio:      chunk,
			SampleRate: pcm.SampleRate,
		})
		seq++
	}
	conn.streamStop.Store(false)
	conn.sendEnvelope(MsgStreamEnd, StreamEndPayload{Seq: seq, Provider: res.Provider, Stopped: stopped})
}

// SetVoice pins a default voice by connection id. Reports whether the
// connection is still attached.
func (h *Hub) SetVoice(connectionID, voiceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connectionID]
	if !ok {
		return false
	}
	conn.voiceID = voiceID
	return true
}

func (h *Hub) sessionVoice(conn *Connection, requested string) string {
	if requested != "" {
		return requested
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return conn.voiceID
}
