package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"papertalk.app/relay/common/logger"
)

// Cache is a flat id→source lookup. A miss is (value="", ok=false, err=nil);
// err is reserved for backend failures, which callers treat as misses.
type Cache interface {
	Get(ctx context.Context, arxivID string) (string, bool, error)
	Set(ctx context.Context, arxivID, value string) error
}

const redisKeyPrefix = "papertalk:source:"

// RedisCache stores fetched source in redis with a TTL, shared across
// server instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, arxivID string) (string, bool, error) {
	value, err := c.client.Get(ctx, redisKeyPrefix+arxivID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, arxivID, value string) error {
	return c.client.Set(ctx, redisKeyPrefix+arxivID, value, c.ttl).Err()
}

// MemoryCache is the in-process fallback used when redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

func (c *MemoryCache) Get(_ context.Context, arxivID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[arxivID]
	if !ok {
		return "", false, nil
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		delete(c.entries, arxivID)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, arxivID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[arxivID] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

// CachedFetcher wraps a Fetcher with a Cache. Cache failures degrade to a
// plain fetch rather than surfacing an error; the same bytes come back either
// way, so observable behavior matches an uncached fetcher.
type CachedFetcher struct {
	fetcher Fetcher
	cache   Cache
}

func NewCachedFetcher(fetcher Fetcher, cache Cache) *CachedFetcher {
	return &CachedFetcher{fetcher: fetcher, cache: cache}
}

func (f *CachedFetcher) Fetch(ctx context.Context, arxivID string) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ArxivID:   logger.Ptr(arxivID),
		Component: "relay.source.cache",
	})

	value, ok, err := f.cache.Get(ctx, arxivID)
	if err != nil {
		slog.WarnContext(ctx, "source cache lookup failed", "error", err)
	} else if ok {
		slog.DebugContext(ctx, "source cache hit", "bytes", len(value))
		return value, nil
	}

	value, err = f.fetcher.Fetch(ctx, arxivID)
	if err != nil {
		return "", err
	}

	if err := f.cache.Set(ctx, arxivID, value); err != nil {
		slog.WarnContext(ctx, "source cache store failed", "error", err)
	}

	return value, nil
}
