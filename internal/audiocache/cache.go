// Package audiocache provides a content-addressed cache for synthesized speech.
// Caching is a latency optimization only: every backend failure degrades to
// miss/no-op so callers never see a cache error.
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/leafline-ai/voiced/internal/cachestore"
	"github.com/leafline-ai/voiced/internal/config"
)

// Params identifies a unique synthesis request. Any field change produces a
// different cache key.
type Params struct {
	Text     string
	VoiceID  string
	Language string
	Speed    float64
	Pitch    float64
	Quality  string
}

// Metadata describes a cached audio payload.
type Metadata struct {
	Provider   string    `json:"provider"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	DurationMS int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entry pairs audio bytes with their metadata. A hit requires both halves.
type Entry struct {
	Audio []byte
	Meta  Metadata
}

// State tags a lookup outcome so callers can pick different policies for a
// plain miss versus an unreachable backend.
type State int

const (
	StateHit State = iota
	StateMiss
	StateUnavailable
)

// Lookup is the result of Cache.Get.
type Lookup struct {
	State State
	Entry Entry
}

// Stats reports cache effectiveness since the last flush.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is the content-addressed audio store.
type Cache struct {
	store  cachestore.Store
	prefix string
	ttl    time.Duration
	maxLen int
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func New(store cachestore.Store, cfg config.CacheConfig, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		prefix: cfg.KeyPrefix,
		ttl:    time.Duration(cfg.TTLDays) * 24 * time.Hour,
		maxLen: cfg.MaxAudioSizeMB << 20,
		logger: logger.With(slog.String("component", "audio-cache")),
	}
}

// Key computes the deterministic digest for a parameter set. The voice id
// also appears verbatim in the key path so invalidation can pattern match
// on it.
func (c *Cache) Key(p Params) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		p.Text,
		p.VoiceID,
		p.Language,
		fmt.Sprintf("%.3f", p.Speed),
		fmt.Sprintf("%.3f", p.Pitch),
		p.Quality,
	}, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) audioKey(p Params) string {
	return fmt.Sprintf("%s:audio:%s:%s", c.prefix, p.VoiceID, c.Key(p))
}

func (c *Cache) metaKey(p Params) string {
	return fmt.Sprintf("%s:meta:%s:%s", c.prefix, p.VoiceID, c.Key(p))
}

func (c *Cache) statsKey(name string) string {
	return fmt.Sprintf("%s:stats:%s", c.prefix, name)
}

// Get looks up a previously synthesized payload. A miss is a normal outcome,
// not an error.
func (c *Cache) Get(ctx context.Context, p Params) Lookup {
	if strings.TrimSpace(p.Text) == "" {
		return Lookup{State: StateMiss}
	}

	audio, err := c.store.Get(ctx, c.audioKey(p))
	if err != nil && !errors.Is(err, cachestore.ErrNotFound) {
		c.logger.Warn("cache backend unavailable, degrading to miss", slog.String("error", err.Error()))
		return Lookup{State: StateUnavailable}
	}
	var meta Metadata
	var metaRaw []byte
	if err == nil {
		metaRaw, err = c.store.Get(ctx, c.metaKey(p))
		if err != nil && !errors.Is(err, cachestore.ErrNotFound) {
			c.logger.Warn("cache backend unavailable, degrading to miss", slog.String("error", err.Error()))
			return Lookup{State: StateUnavailable}
		}
	}

	// both halves must be present for a hit
	if audio == nil || metaRaw == nil || json.Unmarshal(metaRaw, &meta) != nil {
		c.misses.Add(1)
		c.bump(ctx, "misses")
		return Lookup{State: StateMiss}
	}

	c.hits.Add(1)
	c.bump(ctx, "hits")
	return Lookup{State: StateHit, Entry: Entry{Audio: audio, Meta: meta}}
}

// Set stores audio and metadata together under the same TTL so they expire in
// lock-step. Oversized payloads are rejected, not truncated.
func (c *Cache) Set(ctx context.Context, p Params, audio []byte, meta Metadata) bool {
	if strings.TrimSpace(p.Text) == "" || len(audio) == 0 {
		return false
	}
	if len(audio) > c.maxLen {
		c.logger.Warn("audio payload exceeds cache limit, skipping",
			slog.Int("size", len(audio)),
			slog.Int("limit", c.maxLen))
		return false
	}

	metaRaw, err := json.Marshal(meta)
	if err != nil {
		c.logger.Warn("failed to marshal cache metadata", slog.String("error", err.Error()))
		return false
	}

	if err := c.store.SetWithTTL(ctx, c.audioKey(p), audio, c.ttl); err != nil {
		c.logger.Warn("cache set failed", slog.String("error", err.Error()))
		return false
	}
	if err := c.store.SetWithTTL(ctx, c.metaKey(p), metaRaw, c.ttl); err != nil {
		// never leave audio without metadata
		_, _ = c.store.DeleteMany(ctx, []string{c.audioKey(p)})
		c.logger.Warn("cache set failed", slog.String("error", err.Error()))
		return false
	}

	c.sets.Add(1)
	c.bump(ctx, "sets")
	return true
}

// InvalidateVoice removes every entry for a voice identity. Used when the
// voice's reference sample is replaced or deleted. O(n) scan, acceptable as a
// maintenance operation.
func (c *Cache) InvalidateVoice(ctx context.Context, voiceID string) (int64, error) {
	patterns := []string{
		fmt.Sprintf("%s:audio:%s:*", c.prefix, voiceID),
		fmt.Sprintf("%s:meta:%s:*", c.prefix, voiceID),
	}
	var removed int64
	for _, pattern := range patterns {
		keys, err := c.store.ScanKeys(ctx, pattern)
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", pattern, err)
		}
		n, err := c.store.DeleteMany(ctx, keys)
		if err != nil {
			return removed, fmt.Errorf("delete keys for %s: %w", voiceID, err)
		}
		removed += n
	}
	c.logger.Info("invalidated voice cache",
		slog.String("voice", voiceID),
		slog.Int64("removed", removed))
	return removed, nil
}

// Clear flushes every cache entry and resets statistics. Administrative use
// only, never on a request path.
func (c *Cache) Clear(ctx context.Context) bool {
	keys, err := c.store.ScanKeys(ctx, c.prefix+":*")
	if err != nil {
		c.logger.Warn("cache clear scan failed", slog.String("error", err.Error()))
		return false
	}
	if _, err := c.store.DeleteMany(ctx, keys); err != nil {
		c.logger.Warn("cache clear failed", slog.String("error", err.Error()))
		return false
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	return true
}

// GetStats returns counters since startup or the last Clear. Hit rate is 0
// before any request has been observed.
func (c *Cache) GetStats() Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Ping reports backend connectivity for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// bump mirrors a counter into the backing store so a shared Redis exposes
// fleet-wide numbers. Best effort.
func (c *Cache) bump(ctx context.Context, name string) {
	if _, err := c.store.Incr(ctx, c.statsKey(name)); err != nil {
		c.logger.Debug("stats counter increment failed", slog.String("error", err.Error()))
	}
}
