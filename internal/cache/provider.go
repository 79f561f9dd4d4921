package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// Provider stores short-lived lookups such as tracker presence.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// NoopProvider disables caching: every Get misses.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
