package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/leafline-ai/voiced/internal/audiocache"
	"github.com/leafline-ai/voiced/internal/config"
)

// Result is what Synthesize hands back. Audio is always a well-formed WAV
// payload, even when every real engine failed.
type Result struct {
	Audio      []byte
	Provider   string
	SampleRate int
	DurationMS int
	Cached     bool
}

// Synthesizer turns text into audio, consulting the cache first and walking
// an ordered fallback chain on miss.
type Synthesizer struct {
	cfg     config.SynthConfig
	cache   *audiocache.Cache
	catalog *VoiceCatalog
	chain   []Strategy
	timeout time.Duration
	logger  *slog.Logger

	synthCounter    metric.Int64Counter
	fallbackCounter metric.Int64Counter
}

func New(cfg config.SynthConfig, cache *audiocache.Cache, logger *slog.Logger) (*Synthesizer, error) {
	catalog := NewVoiceCatalog(cfg)

	var chain []Strategy
	switch cfg.Mode {
	case "exec":
		primary, err := NewExecStrategy("primary", cfg.Command, catalog, cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		chain = append(chain, primary)
		if cfg.FallbackCommand != "" {
			secondary, err := NewExecStrategy("secondary", cfg.FallbackCommand, catalog, cfg.SampleRate)
			if err != nil {
				return nil, err
			}
			chain = append(chain, secondary)
		}
	case "mock":
		chain = append(chain, NewMockStrategy(cfg.SampleRate))
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Mode)
	}
	chain = append(chain, NewToneStrategy(cfg.SampleRate))

	meter := otel.Meter("voiced/synth")
	synthCounter, err := meter.Int64Counter("voiced_synthesis_total",
		metric.WithDescription("Synthesis requests by outcome"))
	if err != nil {
		return nil, err
	}
	fallbackCounter, err := meter.Int64Counter("voiced_synthesis_fallbacks_total",
		metric.WithDescription("Strategy failures that triggered a fallback"))
	if err != nil {
		return nil, err
	}

	return &Synthesizer{
		cfg:             cfg,
		cache:           cache,
		catalog:         catalog,
		chain:           chain,
		timeout:         time.Duration(cfg.TimeoutMS) * time.Millisecond,
		logger:          logger.With(slog.String("component", "synthesizer")),
		synthCounter:    synthCounter,
		fallbackCounter: fallbackCounter,
	}, nil
}

// Catalog exposes the voice catalog for the HTTP surface.
func (s *Synthesizer) Catalog() *VoiceCatalog { return s.catalog }

// Cache exposes the audio cache for stats and admin operations.
func (s *Synthesizer) Cache() *audiocache.Cache { return s.cache }

// Synthesize always returns a playable payload. The fallback ladder is:
// cache hit, primary engine, secondary engine, generated tone, silence.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) Result {
	req.Text = Normalize(req.Text)
	if req.Text == "" {
		return s.silent("empty input")
	}
	if req.Language == "" {
		req.Language = DetectLanguage(req.Text)
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}
	if req.Quality == "" {
		req.Quality = "medium"
	}
	voice, note := s.catalog.Resolve(req.VoiceID, req.Language)
	if note != "" {
		s.logger.Debug(note, slog.String("requested", req.VoiceID), slog.String("resolved", voice.ID))
	}
	req.VoiceID = voice.ID

	params := audiocache.Params{
		Text:     req.Text,
		VoiceID:  req.VoiceID,
		Language: req.Language,
		Speed:    req.Speed,
		Pitch:    req.Pitch,
		Quality:  req.Quality,
	}
	if lookup := s.cache.Get(ctx, params); lookup.State == audiocache.StateHit {
		s.synthCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cache_hit")))
		return Result{
			Audio:      lookup.Entry.Audio,
			Provider:   lookup.Entry.Meta.Provider,
			SampleRate: lookup.Entry.Meta.SampleRate,
			DurationMS: lookup.Entry.Meta.DurationMS,
			Cached:     true,
		}
	}

	for _, strategy := range s.chain {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		pcm, err := strategy.Attempt(attemptCtx, req)
		cancel()
		if err != nil {
			s.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy.Name())))
			s.logger.Warn("synthesis strategy failed, falling back",
				slog.String("strategy", strategy.Name()),
				slog.String("error", err.Error()))
			continue
		}

		wavBytes, err := EncodeWAV(pcm)
		if err != nil {
			s.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy.Name())))
			s.logger.Warn("audio envelope encoding failed",
				slog.String("strategy", strategy.Name()),
				slog.String("error", err.Error()))
			continue
		}

		meta := audiocache.Metadata{
			Provider:   strategy.Name(),
			SampleRate: pcm.SampleRate,
			Channels:   1,
			DurationMS: DurationMS(pcm),
			CreatedAt:  time.Now().UTC(),
		}
		// placeholder tones are degraded output, not worth caching
		if strategy.Name() != "tone" {
			s.cache.Set(ctx, params, wavBytes, meta)
		}
		s.synthCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", strategy.Name())))
		return Result{
			Audio:      wavBytes,
			Provider:   strategy.Name(),
			SampleRate: meta.SampleRate,
			DurationMS: meta.DurationMS,
		}
	}

	return s.silent("all synthesis strategies exhausted")
}

// silent is the last-resort guarantee of a well-formed payload.
func (s *Synthesizer) silent(reason string) Result {
	s.logger.Error("returning silent buffer", slog.String("reason", reason))
	pcm := Silence(s.cfg.SampleRate, 500)
	wavBytes, err := EncodeWAV(pcm)
	if err != nil {
		// cannot happen with a positive sample rate, but never return nil audio
		wavBytes = pcm.Data
	}
	return Result{
		Audio:      wavBytes,
		Provider:   "silence",
		SampleRate: pcm.SampleRate,
		DurationMS: DurationMS(pcm),
	}
}

// ChunkPCM splits PCM audio into fixed-duration frames for streaming. The
// final frame may be shorter.
func (s *Synthesizer) ChunkPCM(pcm PCM) [][]byte {
	chunkMS := s.cfg.ChunkDurationMS
	if chunkMS <= 0 {
		chunkMS = 400
	}
	chunkBytes := pcm.SampleRate * chunkMS / 1000 * 2
	if chunkBytes <= 0 {
		return nil
	}
	var chunks [][]byte
	for start := 0; start < len(pcm.Data); start += chunkBytes {
		end := start + chunkBytes
		if end > len(pcm.Data) {
			end = len(pcm.Data)
		}
		chunks = append(chunks, pcm.Data[start:end])
	}
	return chunks
}
