package cachemanager

import (
	"context"
	"time"
)

// Loader fetches the value for a key the cache does not hold.
type Loader[K ~string, V any] func(ctx context.Context, key K) (V, error)

// ReadThroughCache answers from cache and falls back to a Loader. Only
// successful loads are stored.
type ReadThroughCache[K ~string, V any] struct {
	cache       CacheManager[K, V]
	load        Loader[K, V]
	passthrough bool
}

// NewReadThroughCache wraps cache with load. When passthrough is set, or
// cache is nil, every lookup calls load.
func NewReadThroughCache[K ~string, V any](cache CacheManager[K, V], load Loader[K, V], passthrough bool) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, load: load, passthrough: passthrough || cache == nil}
}

// Get returns the cached value for key or loads it and keeps it for ttl.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K, ttl time.Duration) (V, error) {
	return r.fetch(ctx, key, ttl, func() (V, bool) { return r.cache.Get(ctx, key) })
}

// GetWithRefresh is Get, except that a hit also restarts the entry's ttl.
func (r *ReadThroughCache[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, error) {
	return r.fetch(ctx, key, ttl, func() (V, bool) { return r.cache.GetWithRefresh(ctx, key, ttl) })
}

func (r *ReadThroughCache[K, V]) fetch(ctx context.Context, key K, ttl time.Duration, cached func() (V, bool)) (V, error) {
	if !r.passthrough {
		if v, ok := cached(); ok {
			return v, nil
		}
	}

	v, err := r.load(ctx, key)
	if err == nil && !r.passthrough {
		r.cache.Set(ctx, key, v, ttl)
	}
	return v, err
}

// Invalidate forgets keys so the next lookup loads them again.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, keys ...K) error {
	if r.passthrough {
		return nil
	}
	return r.cache.Delete(ctx, keys...)
}

// Purge forgets every key.
func (r *ReadThroughCache[K, V]) Purge(ctx context.Context) error {
	if r.passthrough {
		return nil
	}
	return r.cache.Flush(ctx)
}
