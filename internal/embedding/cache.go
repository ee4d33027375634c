package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed embeddings keyed by normalized text for a bounded
// time. Lookups and writes are best-effort: a broken cache degrades to
// recomputation, never to a request failure.
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool)
	Set(ctx context.Context, key string, vec []float64)
}

type memoryEntry struct {
	vec      []float64
	storedAt time.Time
}

// memoryCache is the in-process cache used when Redis is not configured.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a mutex-guarded in-process cache.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.vec, true
}

func (c *memoryCache) Set(_ context.Context, key string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{vec: vec, storedAt: c.now()}
}

// redisCache shares cached embeddings across instances. Keys are hashed so
// normalized text of up to 1000 chars stays within sane key sizes.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]float64, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *redisCache) Set(ctx context.Context, key string, vec []float64) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKey(key), raw, c.ttl).Err()
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "embedding:" + hex.EncodeToString(sum[:])
}
