package repo

import (
	"context"
	"sync"
	"time"

	"github.com/calladmin/calladmin-client/internal/cache"
)

// stubCache records every call so presence tests can assert on cache traffic.
type stubCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	deleted []string
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.entries[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, cache.ErrCacheMiss
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubCache) Close() error { return nil }
