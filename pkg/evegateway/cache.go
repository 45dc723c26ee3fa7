package evegateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go-battlewatch/pkg/database"
)

// MemoryCache is the in-process cache tier. Entries expire lazily on read;
// a janitor sweep runs on each Set once the map grows past sweepThreshold.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

const sweepThreshold = 4096

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached bytes for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

// Set stores data under key for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{data: data, expiresAt: now.Add(ttl)}
	if len(c.entries) > sweepThreshold {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache is the shared cache tier. All failures degrade to a miss and are
// counted, never surfaced to callers.
type RedisCache struct {
	redis    *database.Redis
	prefix   string
	failures atomic.Int64
}

// NewRedisCache creates a shared cache tier over redis with a key prefix.
func NewRedisCache(redis *database.Redis, prefix string) *RedisCache {
	return &RedisCache{redis: redis, prefix: prefix}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

// Get returns the cached bytes for key. Redis errors count as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(ctx, c.key(key))
	if err != nil {
		if !database.IsNilError(err) {
			c.failures.Add(1)
			slog.Debug("Shared cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return []byte(val), true
}

// Set stores data under key for ttl. Redis errors are counted and dropped.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(key), data, ttl); err != nil {
		c.failures.Add(1)
		slog.Debug("Shared cache write failed", "key", key, "error", err)
	}
}

// Failures returns the count of degraded cache operations since startup.
func (c *RedisCache) Failures() int64 {
	return c.failures.Load()
}

// TieredCache layers a shared tier over an in-process tier. Reads consult the
// shared tier first and fall back to the local tier; writes populate both.
type TieredCache struct {
	shared   Cache
	local    Cache
	localTTL time.Duration
}

// NewTieredCache composes the two cache tiers. localTTL caps how long the
// in-process tier may hold an entry regardless of the shared TTL.
func NewTieredCache(shared, local Cache, localTTL time.Duration) *TieredCache {
	return &TieredCache{shared: shared, local: local, localTTL: localTTL}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := c.shared.Get(ctx, key); ok {
		c.local.Set(ctx, key, data, c.localTTL)
		return data, true
	}
	return c.local.Get(ctx, key)
}

func (c *TieredCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	c.shared.Set(ctx, key, data, ttl)
	localTTL := c.localTTL
	if ttl < localTTL {
		localTTL = ttl
	}
	c.local.Set(ctx, key, data, localTTL)
}
