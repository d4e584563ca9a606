package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leafline-ai/voiced/internal/audiocache"
	"github.com/leafline-ai/voiced/internal/cachestore"
	"github.com/leafline-ai/voiced/internal/config"
	"github.com/leafline-ai/voiced/internal/hub"
	"github.com/leafline-ai/voiced/internal/synth"
	"github.com/leafline-ai/voiced/internal/transcribe"
	"github.com/leafline-ai/voiced/internal/usagelog"
)

func newTestAPI(t *testing.T) (*API, *http.ServeMux) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()

	store := cachestore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	cache := audiocache.New(store, cfg.Cache, logger)

	syn, err := synth.New(cfg.Synth, cache, logger)
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	rec, err := transcribe.NewRecognizer(cfg.Transcribe)
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	h, err := hub.New(cfg.Hub, syn, logger)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	usage, err := usagelog.Open(t.Context(), config.UsageLogConfig{RetentionMode: "ephemeral"}, logger)
	if err != nil {
		t.Fatalf("open usage log: %v", err)
	}
	t.Cleanup(func() { _ = usage.Close() })

	api := New(cfg, syn, rec, h, usage, logger)
	mux := http.NewServeMux()
	api.Register(mux)
	return api, mux
}

func toneWAV(t *testing.T) []byte {
	t.Helper()
	pcm := synth.Silence(16000, 200)
	wavBytes, err := synth.EncodeWAV(pcm)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return wavBytes
}

func TestSynthesizeReturnsWav(t *testing.T) {
	_, mux := newTestAPI(t)

	body := bytes.NewBufferString(`{"text":"hello there"}`)
	req := httptest.NewRequest(http.MethodPost, "/synthesize", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("RIFF")) {
		t.Fatal("response is not a wav payload")
	}
	if got := rr.Header().Get("X-Voiced-Provider"); got != "mock" {
		t.Fatalf("unexpected provider %q", got)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/synthesize", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSynthesizeSecondCallIsCached(t *testing.T) {
	_, mux := newTestAPI(t)

	for i, want := range []string{"false", "true"} {
		req := httptest.NewRequest(http.MethodPost, "/synthesize",
			bytes.NewBufferString(`{"text":"repeat me"}`))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rr.Code)
		}
		if got := rr.Header().Get("X-Voiced-Cached"); got != want {
			t.Fatalf("call %d: expected cached=%s, got %s", i, want, got)
		}
	}
}

func TestTranscribeWavBody(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader(toneWAV(t)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp transcribeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text == "" || resp.Language != "en" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDetectSpeechOnSilence(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/detect_speech", bytes.NewReader(make([]byte, 16000)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var report transcribe.SpeechReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Speech {
		t.Fatalf("silence flagged as speech: %+v", report)
	}
}

func TestProcessRoundTrip(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader(toneWAV(t)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp processResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Reply, "You said: ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if len(resp.Audio) == 0 {
		t.Fatal("expected reply audio")
	}
}

func TestVoiceListing(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/voice", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Voices []synth.VoiceInfo `json:"voices"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Voices) == 0 {
		t.Fatal("expected configured voices")
	}
}

func TestVoiceSwitchUnknownVoice(t *testing.T) {
	_, mux := newTestAPI(t)

	body := bytes.NewBufferString(`{"connection_id":"c1","voice_id":"nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/voice", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStatusReportsComponents(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["service"] != "voiced" {
		t.Fatalf("unexpected service %v", status["service"])
	}
	if _, ok := status["cache"]; !ok {
		t.Fatal("status missing cache stats")
	}
	if status["cache_ok"] != true {
		t.Fatal("expected healthy cache")
	}
}

func TestCacheInvalidateRequiresVoice(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCacheClear(t *testing.T) {
	_, mux := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/cache/clear", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["cleared"] {
		t.Fatal("expected cleared=true")
	}
}
