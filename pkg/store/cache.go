package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the portal's short-lived state: brute-force counters and
// operational flags. Lookups of missing or expired keys return redis.Nil so
// callers can treat both backends the same way.
type Cache interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// NewCache prefers Redis so brute-force state survives restarts and is
// shared across replicas; a dead or absent client degrades to process-local
// memory.
func NewCache(ctx context.Context, client *redis.Client) Cache {
	if client == nil {
		return NewMemoryCache()
	}
	if client.Ping(ctx).Err() != nil {
		return NewMemoryCache()
	}
	return &RedisCache{client: client}
}

// RedisCache delegates straight to go-redis.
type RedisCache struct{ client *redis.Client }

func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// MemoryCache is the single-process fallback. Expiry is enforced on access,
// so an idle key may linger past its TTL but is never returned stale.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value    string
	deadline time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(time.Now())
	if _, exists := c.entries[key]; exists {
		return false, nil
	}
	c.entries[key] = memoryEntry{value: value, deadline: time.Now().Add(ttl)}
	return true, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(time.Now())
	entry, exists := c.entries[key]
	if !exists {
		return "", redis.Nil
	}
	return entry.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(time.Now())
	c.entries[key] = memoryEntry{value: value, deadline: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) expireLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.deadline) {
			delete(c.entries, key)
		}
	}
}
