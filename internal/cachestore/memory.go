package cachestore

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// memoryStore is the dev/test backend. Counter keys live outside the TTL cache
// so stats survive entry expiry.
type memoryStore struct {
	data *ttlcache.Cache[string, []byte]

	mu       sync.Mutex
	counters map[string]int64
}

func NewMemory() Store {
	data := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go data.Start()
	return &memoryStore{
		data:     data,
		counters: make(map[string]int64),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.data.Get(key)
	if item == nil {
		return nil, ErrNotFound
	}
	return item.Value(), nil
}

func (s *memoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.data.Set(key, value, ttl)
	return nil
}

func (s *memoryStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for _, key := range s.data.Keys() {
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			keys = append(keys, key)
		}
	}
	s.mu.Lock()
	for key := range s.counters {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	return keys, nil
}

func (s *memoryStore) DeleteMany(_ context.Context, keys []string) (int64, error) {
	var removed int64
	for _, key := range keys {
		if s.data.Has(key) {
			s.data.Delete(key)
			removed++
			continue
		}
		s.mu.Lock()
		if _, ok := s.counters[key]; ok {
			delete(s.counters, key)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.data.Stop()
	s.data.DeleteAll()
	s.mu.Lock()
	s.counters = make(map[string]int64)
	s.mu.Unlock()
	return nil
}
