package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/fsync/internal/log"
)

// Defaults for caches built without explicit settings.
const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// InMemoryCacheManager is the go-cache implementation of CacheManager.
type InMemoryCacheManager[K ~string, V any] struct {
	name   string
	items  *gocache.Cache
	logger *log.Logger
}

var _ CacheManager[string, bool] = (*InMemoryCacheManager[string, bool])(nil)

// NewInMemoryCacheManager creates an in-memory cache called name (used in
// log lines). A zero ttl passed to Set uses defaultExpiration.
func NewInMemoryCacheManager[K ~string, V any](name string, defaultExpiration, cleanupInterval time.Duration, logger *log.Logger) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		name:   name,
		items:  gocache.New(defaultExpiration, cleanupInterval),
		logger: logger,
	}
}

// Get returns the live entry for key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, found := c.items.Get(string(key))
	if !found {
		c.logger.Debug(log.CatCache, "Cache miss", "cache", c.name, "key", key)
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		c.logger.Error(log.CatCache, "Cached value has the wrong type", "cache", c.name, "key", key)
		return zero, false
	}
	c.logger.Debug(log.CatCache, "Cache hit", "cache", c.name, "key", key)
	return v, true
}

// GetWithRefresh is Get, except that a hit stores the entry again for ttl.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	v, ok := c.Get(ctx, key)
	if ok {
		c.Set(ctx, key, v, ttl)
	}
	return v, ok
}

// Set stores value under key for ttl.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(string(key), value, ttl)
}

// Delete removes keys. Missing keys are ignored.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.items.Delete(string(key))
	}
	return nil
}

// Flush removes every entry.
func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	n := c.items.ItemCount()
	c.items.Flush()
	c.logger.Debug(log.CatCache, "Cache flushed", "cache", c.name, "entries", n)
	return nil
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.items.ItemCount()
}
