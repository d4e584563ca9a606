package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leafline-ai/voiced/internal/config"
	"github.com/leafline-ai/voiced/internal/hub"
	"github.com/leafline-ai/voiced/internal/synth"
	"github.com/leafline-ai/voiced/internal/transcribe"
	"github.com/leafline-ai/voiced/internal/usagelog"
)

// Responder turns a final transcript into reply text. The generation
// engine lives outside this service; the default responder echoes.
type Responder func(ctx context.Context, transcript string) string

func EchoResponder(_ context.Context, transcript string) string {
	return "You said: " + transcript
}

// API is the HTTP surface in front of the voice pipeline.
type API struct {
	cfg        config.Config
	logger     *slog.Logger
	synth      *synth.Synthesizer
	recognizer transcribe.Recognizer
	hub        *hub.Hub
	usage      *usagelog.Store
	respond    Responder
	busHealthy func() bool
}

func New(cfg config.Config, syn *synth.Synthesizer, rec transcribe.Recognizer,
	h *hub.Hub, usage *usagelog.Store, logger *slog.Logger) *API {
	return &API{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "httpapi")),
		synth:      syn,
		recognizer: rec,
		hub:        h,
		usage:      usage,
		respond:    EchoResponder,
		busHealthy: func() bool { return false },
	}
}

// SetResponder swaps the reply hook. Call before serving.
func (a *API) SetResponder(r Responder) { a.respond = r }

// SetBusProbe attaches the bus health check used by /status.
func (a *API) SetBusProbe(probe func() bool) { a.busHealthy = probe }

// Register mounts every route on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/synthesize", a.handleSynthesize)
	mux.HandleFunc("/transcribe", a.handleTranscribe)
	mux.HandleFunc("/detect_speech", a.handleDetectSpeech)
	mux.HandleFunc("/process", a.handleProcess)
	mux.HandleFunc("/voice", a.handleVoice)
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/cache/invalidate", a.handleCacheInvalidate)
	mux.HandleFunc("/cache/clear", a.handleCacheClear)
	mux.Handle("/metrics", promhttp.Handler())
	if a.hub != nil {
		mux.HandleFunc("/ws", a.hub.ServeWS)
	}
}

type synthesizeRequest struct {
	SessionID string  `json:"session_id,omitempty"`
	Text      string  `json:"text"`
	VoiceID   string  `json:"voice_id,omitempty"`
	Language  string  `json:"language,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Pitch     float64 `json:"pitch,omitempty"`
	Quality   string  `json:"quality,omitempty"`
}

func (a *API) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	started := time.Now()
	res := a.synth.Synthesize(r.Context(), synth.Request{
		SessionID: req.SessionID,
		Text:      req.Text,
		VoiceID:   req.VoiceID,
		Language:  req.Language,
		Speed:     req.Speed,
		Pitch:     req.Pitch,
		Quality:   req.Quality,
	})
	a.recordUsage(r.Context(), usagelog.Entry{
		SessionID:  req.SessionID,
		Kind:       "synthesis",
		VoiceID:    req.VoiceID,
		Provider:   res.Provider,
		Language:   req.Language,
		CacheHit:   res.Cached,
		DurationMS: int(time.Since(started).Milliseconds()),
		TextChars:  len(req.Text),
	})

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
	w.Header().Set("X-Voiced-Provider", res.Provider)
	w.Header().Set("X-Voiced-Cached", fmt.Sprintf("%t", res.Cached))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

func (a *API) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	pcm, sampleRate, ok := a.readAudio(w, r)
	if !ok {
		return
	}

	started := time.Now()
	res, err := a.transcribePCM(r.Context(), pcm, sampleRate)
	if err != nil {
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	a.recordUsage(r.Context(), usagelog.Entry{
		SessionID:  r.URL.Query().Get("session_id"),
		Kind:       "transcription",
		Language:   res.Language,
		DurationMS: int(time.Since(started).Milliseconds()),
	})
	writeJSON(w, http.StatusOK, transcribeResponse{
		Text: res.Text, Language: res.Language, Confidence: res.Confidence,
	})
}

func (a *API) handleDetectSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	pcm, _, ok := a.readAudio(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, transcribe.DetectSpeech(pcm))
}

type processResponse struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	Audio      []byte `json:"audio"`
	Provider   string `json:"provider"`
	Cached     bool   `json:"cached"`
}

// handleProcess runs the full voice round trip: transcribe the uploaded
// audio, hand the transcript to the reply hook, synthesize the reply.
func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	pcm, sampleRate, ok := a.readAudio(w, r)
	if !ok {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	tr, err := a.transcribePCM(r.Context(), pcm, sampleRate)
	if err != nil {
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	reply := a.respond(r.Context(), tr.Text)
	res := a.synth.Synthesize(r.Context(), synth.Request{
		SessionID: sessionID,
		Text:      reply,
		VoiceID:   r.URL.Query().Get("voice_id"),
		Language:  tr.Language,
	})
	a.recordUsage(r.Context(), usagelog.Entry{
		SessionID: sessionID,
		Kind:      "synthesis",
		Provider:  res.Provider,
		Language:  tr.Language,
		CacheHit:  res.Cached,
		TextChars: len(reply),
	})
	writeJSON(w, http.StatusOK, processResponse{
		SessionID:  sessionID,
		Transcript: tr.Text,
		Reply:      reply,
		Audio:      res.Audio,
		Provider:   res.Provider,
		Cached:     res.Cached,
	})
}

type voiceSwitchRequest struct {
	ConnectionID string `json:"connection_id"`
	VoiceID      string `json:"voice_id"`
}

func (a *API) handleVoice(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"voices": a.synth.Catalog().Voices()})
	case http.MethodPost:
		var req voiceSwitchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VoiceID == "" {
			writeError(w, http.StatusBadRequest, "connection_id and voice_id required")
			return
		}
		if !a.synth.Catalog().Has(req.VoiceID) {
			writeError(w, http.StatusNotFound, "unknown voice "+req.VoiceID)
			return
		}
		if a.hub == nil || !a.hub.SetVoice(req.ConnectionID, req.VoiceID) {
			writeError(w, http.StatusNotFound, "unknown connection")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"voice_id": req.VoiceID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"service":     a.cfg.ServiceName,
		"environment": a.cfg.Environment,
		"cache":       a.synth.Cache().GetStats(),
		"cache_ok":    a.synth.Cache().Ping(r.Context()) == nil,
		"bus_ok":      a.busHealthy(),
	}
	if a.hub != nil {
		status["hub"] = map[string]any{
			"connections": a.hub.ConnectionCount(),
			"topics":      a.hub.Topics(),
		}
	}
	if a.usage != nil {
		if sum, err := a.usage.Summarize(r.Context()); err == nil {
			status["usage"] = sum
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	voiceID := r.URL.Query().Get("voice_id")
	if voiceID == "" {
		writeError(w, http.StatusBadRequest, "voice_id is required")
		return
	}
	removed, err := a.synth.Cache().InvalidateVoice(r.Context(), voiceID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "cache backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": a.synth.Cache().Clear(r.Context())})
}

// transcribePCM degrades to a mock transcript when the engine fails,
// mirroring the synthesis fallback discipline.
func (a *API) transcribePCM(ctx context.Context, pcm []byte, sampleRate int) (transcribe.Result, error) {
	timeout := time.Duration(a.cfg.Transcribe.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := a.recognizer.Transcribe(ctx, pcm, sampleRate, a.cfg.Transcribe.Channels)
	if err == nil {
		return res, nil
	}
	a.logger.Warn("recognizer failed, degrading to mock",
		slog.String("error", err.Error()))
	return transcribe.NewMockRecognizer(a.cfg.Transcribe).Transcribe(ctx, pcm, sampleRate, a.cfg.Transcribe.Channels)
}

// readAudio accepts a WAV body or raw s16le PCM and returns mono PCM
// plus its sample rate.
func (a *API) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, int, bool) {
	body, err := readBody(r, 32<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, 0, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "audio body is required")
		return nil, 0, false
	}
	if pcm, err := synth.DecodeWAV(body); err == nil {
		return pcm.Data, pcm.SampleRate, true
	}
	if len(body)%2 != 0 {
		writeError(w, http.StatusBadRequest, "audio payload not aligned")
		return nil, 0, false
	}
	rate := a.cfg.Transcribe.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return body, rate, true
}

func (a *API) recordUsage(ctx context.Context, e usagelog.Entry) {
	if a.usage == nil {
		return
	}
	if err := a.usage.Record(ctx, e); err != nil {
		a.logger.Warn("usage record failed", slog.String("error", err.Error()))
	}
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, limit))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
