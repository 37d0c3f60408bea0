package blob

import (
	"context"
	"errors"

	"github.com/loqalabs/narrator/internal/cache"
)

// cachedStore memoizes positive existence answers. Objects are immutable
// once written, so a cached "exists" never goes stale while it is in the
// TTL window; negative answers are never cached.
type cachedStore struct {
	Store
	cache cache.Cache
}

// WithExistsCache wraps s so repeated Exists checks for known objects skip
// the backend.
func WithExistsCache(s Store, c cache.Cache) Store {
	if c == nil {
		return s
	}
	return &cachedStore{Store: s, cache: c}
}

func existsKey(path string) string { return "blob-exists:" + path }

func (c *cachedStore) Exists(ctx context.Context, path string) (bool, error) {
	if _, ok, err := c.cache.Get(ctx, existsKey(path)); err == nil && ok {
		return true, nil
	}
	ok, err := c.Store.Exists(ctx, path)
	if err == nil && ok {
		_ = c.cache.Set(ctx, existsKey(path), []byte{1})
	}
	return ok, err
}

func (c *cachedStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	loc, err := c.Store.Put(ctx, path, data, contentType)
	if err == nil || errors.Is(err, ErrConflict) {
		_ = c.cache.Set(ctx, existsKey(path), []byte{1})
	}
	return loc, err
}
