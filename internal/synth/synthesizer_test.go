package synth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leafline-ai/voiced/internal/audiocache"
	"github.com/leafline-ai/voiced/internal/cachestore"
	"github.com/leafline-ai/voiced/internal/config"
)

func newTestSynth(t *testing.T) *Synthesizer {
	t.Helper()
	store := cachestore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := audiocache.New(store, config.Default().Cache, logger)

	cfg := config.Default().Synth
	s, err := New(cfg, cache, logger)
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	return s
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	s := newTestSynth(t)
	res := s.Synthesize(context.Background(), Request{Text: "Hello", VoiceID: "v1", Language: "en"})
	if len(res.Audio) == 0 {
		t.Fatal("expected audio payload")
	}
	if !bytes.HasPrefix(res.Audio, []byte("RIFF")) {
		t.Fatal("expected wav envelope")
	}
	if res.Cached {
		t.Fatal("first synthesis must not be a cache hit")
	}
}

func TestSynthesizeCachesSecondCall(t *testing.T) {
	s := newTestSynth(t)
	ctx := context.Background()
	req := Request{Text: "Hello", VoiceID: "v1", Language: "en"}

	first := s.Synthesize(ctx, req)
	second := s.Synthesize(ctx, req)

	if !second.Cached {
		t.Fatal("second identical call should hit the cache")
	}
	if !bytes.Equal(first.Audio, second.Audio) {
		t.Fatal("cached audio must match the original")
	}

	stats := s.Cache().GetStats()
	if stats.Misses != 1 || stats.Sets != 1 || stats.Hits != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSynthesizeEmptyTextGivesSilence(t *testing.T) {
	s := newTestSynth(t)
	res := s.Synthesize(context.Background(), Request{Text: "   "})
	if res.Provider != "silence" {
		t.Fatalf("expected silence provider, got %q", res.Provider)
	}
	if len(res.Audio) == 0 {
		t.Fatal("silent result must still be a payload")
	}
}

// stallStrategy blocks until its context is cancelled, simulating a hung
// model process.
type stallStrategy struct{}

func (stallStrategy) Name() string { return "stall" }
func (stallStrategy) Attempt(ctx context.Context, _ Request) (PCM, error) {
	<-ctx.Done()
	return PCM{}, ctx.Err()
}

// failStrategy always errors.
type failStrategy struct{}

func (failStrategy) Name() string { return "fail" }
func (failStrategy) Attempt(context.Context, Request) (PCM, error) {
	return PCM{}, errors.New("engine exploded")
}

func TestTimeoutFallsBackToTone(t *testing.T) {
	s := newTestSynth(t)
	s.timeout = 50 * time.Millisecond
	s.chain = []Strategy{stallStrategy{}, NewToneStrategy(s.cfg.SampleRate)}

	start := time.Now()
	res := s.Synthesize(context.Background(), Request{Text: "Hello", VoiceID: "v1"})
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout did not bound the stalled strategy")
	}
	if res.Provider != "tone" {
		t.Fatalf("expected tone fallback, got %q", res.Provider)
	}
	if len(res.Audio) == 0 {
		t.Fatal("fallback must still produce audio")
	}
}

func TestAllEnginesFailStillReturnsTone(t *testing.T) {
	s := newTestSynth(t)
	s.chain = []Strategy{failStrategy{}, failStrategy{}, NewToneStrategy(s.cfg.SampleRate)}

	res := s.Synthesize(context.Background(), Request{Text: "Hello"})
	if res.Provider != "tone" {
		t.Fatalf("expected tone, got %q", res.Provider)
	}
}

func TestToneResultsAreNotCached(t *testing.T) {
	s := newTestSynth(t)
	s.chain = []Strategy{NewToneStrategy(s.cfg.SampleRate)}

	s.Synthesize(context.Background(), Request{Text: "Hello"})
	if sets := s.Cache().GetStats().Sets; sets != 0 {
		t.Fatalf("placeholder audio must not be cached, got %d sets", sets)
	}
}

func TestChunkPCM(t *testing.T) {
	s := newTestSynth(t)
	pcm := PCM{SampleRate: 22050, Data: make([]byte, 22050*2)} // 1s
	chunks := s.ChunkPCM(pcm)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of 400ms for 1s audio, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(pcm.Data) {
		t.Fatal("chunking must not lose bytes")
	}
}
