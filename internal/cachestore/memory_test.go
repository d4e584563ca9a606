package cachestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "voice:audio:abc", []byte("pcm"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "voice:audio:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "pcm" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestMemoryMiss(t *testing.T) {
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "short", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryScanAndDelete(t *testing.T) {
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for _, key := range []string{"voice:audio:a:v1", "voice:audio:b:v1", "voice:audio:c:v2"} {
		if err := s.SetWithTTL(ctx, key, []byte("x"), time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := s.ScanKeys(ctx, "voice:audio:*:v1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	removed, err := s.DeleteMany(ctx, keys)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := s.Get(ctx, "voice:audio:c:v2"); err != nil {
		t.Fatalf("unrelated key should survive: %v", err)
	}
}

func TestMemoryIncr(t *testing.T) {
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "voice:stats:hits")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	// counters are reachable by scan so a full flush can reset them
	keys, err := s.ScanKeys(ctx, "voice:stats:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected counter key in scan, got %v", keys)
	}
}
