package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache stores fetched page bodies for a short time.
type PageCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, body string, ttl time.Duration) error
}

// CacheKey scopes a URL to a run namespace.
func CacheKey(namespace, fullURL string) string {
	sum := sha256.Sum256([]byte(fullURL))
	return namespace + ":" + hex.EncodeToString(sum[:16])
}

type memEntry struct {
	body    string
	expires time.Time
}

// sweepInterval bounds how often Set scans for expired entries.
const sweepInterval = time.Minute

// MemoryCache is an in-process PageCache. Expired entries are dropped on
// read and swept on write, so a cache outliving its runs stays bounded.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	nextSweep time.Time
	now       func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.body, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, body string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextSweep) {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		c.nextSweep = now.Add(sweepInterval)
	}
	c.entries[key] = memEntry{body: body, expires: now.Add(ttl)}
	return nil
}

// Len reports how many entries are held, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares cached pages across processes. Keys are still
// namespaced per run by the Fetcher.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects lazily to addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "timeshare:page:",
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis cache: get: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, body string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache: set: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
