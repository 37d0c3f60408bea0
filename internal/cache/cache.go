// Package cache is the injected TTL cache service. Entries expire after the
// TTL chosen when the backend is constructed.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque values by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Options selects and sizes a backend.
type Options struct {
	Backend       string
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New builds the configured backend. "none" and "" return a Noop cache.
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "none":
		return Noop{}, nil
	case "memory":
		return NewMemory(opts.Size, opts.TTL), nil
	case "redis":
		return NewRedisAddr(opts.RedisAddr, opts.RedisPassword, opts.RedisDB,
			WithPrefix(opts.Prefix), WithTTL(opts.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Delete(context.Context, string) error              { return nil }
