// Package memory provides an in-memory cache implementation.
package memory

import (
	"context"
	"time"

	icache "github.com/opengw/llmgateway/internal/cache"
	"github.com/opengw/llmgateway/pkg/cache"
)

// Cache implements cache.Cache interface using an in-memory LRU+TTL store.
type Cache struct {
	inner *icache.MemoryCache
}

// Config holds configuration for the in-memory Cache.
type Config struct {
	MaxSize         int           // Maximum number of items (default: 1000)
	DefaultTTL      time.Duration // Default TTL (default: 10 minutes)
	MaxItemSize     int           // Maximum size per item in bytes (default: 1MB)
	CleanupInterval time.Duration // Cleanup interval (default: 1 minute)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	d := icache.DefaultMemoryCacheConfig()
	return Config{
		MaxSize:         d.MaxSize,
		DefaultTTL:      d.DefaultTTL,
		MaxItemSize:     d.MaxItemSize,
		CleanupInterval: d.CleanupInterval,
	}
}

// New creates a new in-memory cache with the given configuration.
func New(cfg Config) *Cache {
	return &Cache{
		inner: icache.NewMemoryCache(icache.MemoryCacheConfig{
			MaxSize:         cfg.MaxSize,
			DefaultTTL:      cfg.DefaultTTL,
			MaxItemSize:     cfg.MaxItemSize,
			CleanupInterval: cfg.CleanupInterval,
		}),
	}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.inner.Get(ctx, key)
}

// Set stores a value in the cache with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl)
}

// Delete removes a key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

// SetPipeline performs batch set operations for efficiency.
func (c *Cache) SetPipeline(ctx context.Context, entries []cache.Entry) error {
	converted := make([]icache.CacheEntry, len(entries))
	for i, e := range entries {
		converted[i] = icache.CacheEntry{Key: e.Key, Value: e.Value, TTL: e.TTL}
	}
	return c.inner.SetPipeline(ctx, converted)
}

// GetMulti retrieves multiple keys at once.
func (c *Cache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	return c.inner.GetMulti(ctx, keys)
}

// Ping checks if the cache is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close releases any resources held by the cache.
func (c *Cache) Close() error {
	return c.inner.Close()
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	s := c.inner.Stats()
	return cache.Stats{
		Hits:    s.Hits,
		Misses:  s.Misses,
		Sets:    s.Sets,
		HitRate: s.HitRate,
	}
}

// Len returns the number of items in the cache.
func (c *Cache) Len() int {
	return c.inner.Len()
}

// Flush removes all entries from the cache.
func (c *Cache) Flush() {
	c.inner.Flush()
}
