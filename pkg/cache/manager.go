package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const (
	tagIndexPrefix = "storefront:tag:"

	// tag index sets outlive the entries they point at; dangling members are harmless
	tagIndexGrace = time.Hour
)

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field and indexes the
// entry key under each of its tags.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, cacheKey, data, ttl)
		for _, tag := range entry.Tags {
			indexKey := tagIndexPrefix + tag
			pipe.SAdd(ctx, indexKey, cacheKey)
			pipe.Expire(ctx, indexKey, ttl+tagIndexGrace)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InvalidateTags removes every entry indexed under any of tags and drops the tag indexes.
// It returns the number of entry keys removed.
//
// The indexes are read and dropped in one transaction, so an entry Set concurrently is
// either collected here or lands in a fresh index.
func (m *Manager) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	indexKeys := make([]string, 0, len(tags))
	for _, tag := range tags {
		indexKeys = append(indexKeys, tagIndexPrefix+tag)
	}

	var members *redis.StringSliceCmd
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SUnion(ctx, indexKeys...)
		pipe.Del(ctx, indexKeys...)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return 0, fmt.Errorf("redis collect tag index: %w", err)
	}

	// Members may point at entries that already expired or were removed through another
	// tag, so only keys actually deleted are counted.
	removed := 0
	if keys := members.Val(); len(keys) > 0 {
		n, err := m.redis.Del(ctx, keys...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return 0, fmt.Errorf("redis del: %w", err)
		}
		removed = int(n)
	}

	CacheInvalidations.Add(float64(len(tags)))
	CacheInvalidatedEntries.Add(float64(removed))

	return removed, nil
}

// RevalidatePath removes every entry tagged with the path tag of path, which includes all
// entries cached for path and any path below it.
func (m *Manager) RevalidatePath(ctx context.Context, path string) (int, error) {
	return m.InvalidateTags(ctx, PathTag(path))
}

// Ping checks the backing Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}
