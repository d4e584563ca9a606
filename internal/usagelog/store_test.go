package usagelog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/leafline-ai/voiced/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeralDropsWrites(t *testing.T) {
	cfg := config.UsageLogConfig{RetentionMode: "ephemeral"}
	us, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = us.Close() })

	if err := us.Record(context.Background(), Entry{SessionID: "s1", Kind: "synthesis"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := us.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no rows in ephemeral mode, got %d", len(entries))
	}
}

func TestRecordAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.UsageLogConfig{Path: filepath.Join(tmp, "usage.db"), RetentionMode: "session"}
	us, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open usage log: %v", err)
	}
	t.Cleanup(func() { _ = us.Close() })

	session := "session-123"
	if err := us.Record(context.Background(), Entry{
		SessionID: session, Kind: "synthesis", VoiceID: "en_US-amy-medium",
		Provider: "primary", Language: "en", CacheHit: true, DurationMS: 820, TextChars: 42,
	}); err != nil {
		t.Fatalf("record synthesis: %v", err)
	}
	if err := us.Record(context.Background(), Entry{
		SessionID: session, Kind: "transcription", Language: "en", DurationMS: 2000,
	}); err != nil {
		t.Fatalf("record transcription: %v", err)
	}

	entries, err := us.Recent(context.Background(), session, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(entries))
	}
	if entries[0].VoiceID != "en_US-amy-medium" || !entries[0].CacheHit {
		t.Fatalf("unexpected first row: %+v", entries[0])
	}

	sum, err := us.Summarize(context.Background())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Syntheses != 1 || sum.Transcriptions != 1 || sum.CacheHits != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.UsageLogConfig{Path: filepath.Join(tmp, "usage.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	us, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open usage log: %v", err)
	}
	t.Cleanup(func() { _ = us.Close() })

	us.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := us.Record(context.Background(), Entry{SessionID: "old-session", Kind: "synthesis"}); err != nil {
		t.Fatalf("record old: %v", err)
	}

	us.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := us.Record(context.Background(), Entry{SessionID: "new-session", Kind: "synthesis"}); err != nil {
		t.Fatalf("record new: %v", err)
	}
	if err := us.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := us.Recent(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("recent old: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old session pruned, got %d rows", len(old))
	}
	fresh, err := us.Recent(context.Background(), "new-session", 10)
	if err != nil {
		t.Fatalf("recent new: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected new session retained, got %d rows", len(fresh))
	}
}
