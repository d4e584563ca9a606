// Package cachestore abstracts the key-value store backing the audio cache.
// Implementations must be safe for concurrent use; single-key get/set atomicity
// is the only guarantee callers rely on.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cachestore: key not found")

// Store is the contract consumed by the audio cache.
type Store interface {
	// Get retrieves the value for key. Returns ErrNotFound on absence.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// ScanKeys returns every live key matching a glob-style pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// DeleteMany removes the given keys and reports how many existed.
	DeleteMany(ctx context.Context, keys []string) (int64, error)

	// Incr atomically increments a counter key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases resources held by the implementation.
	Close() error
}
