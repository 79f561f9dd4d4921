package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a process-local Provider with per-key expiry.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]entry), now: time.Now}
}

func (c *MemoryProvider) expired(e entry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *MemoryProvider) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.expired(e) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && c.expired(cur) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value; a non-positive ttl never expires.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return nil
}

// Del removes key.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
	return nil
}
