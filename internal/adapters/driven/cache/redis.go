package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

const scanBatch = 100

// RedisStore shares entries between processes through a Redis server.
// Keys are namespaced by prefix so several clients can share one database.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore wraps client. Entries expire from Redis retention after
// they go stale, which leaves time for conditional revalidation.
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get fetches and decodes the entry stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, domain.CacheError(domain.ErrCodeCacheUnavailable, key, err)
	}
	return decodeEntry(key, b)
}

// Put writes entry with a TTL covering its lifetime plus retention.
func (s *RedisStore) Put(ctx context.Context, entry *domain.CacheEntry) error {
	b, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	ttl := entry.Lifetime
	if entry.HasValidators() {
		ttl += s.retention
	}
	if ttl <= 0 {
		ttl = s.retention
	}
	if err := s.client.Set(ctx, s.key(entry.Key), b, ttl).Err(); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, entry.Key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, key, err)
	}
	return nil
}

// Prune scans the prefix and removes prunable entries.
func (s *RedisStore) Prune(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	var stale []string
	err := s.scan(ctx, func(redisKey string) error {
		b, err := s.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		entry, err := decodeEntry(redisKey, b)
		if err != nil || entry.Prunable(now, grace) {
			stale = append(stale, redisKey)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, domain.CacheError(domain.ErrCodeCacheUnavailable, s.prefix, err)
	}
	return int(n), nil
}

// Clear removes every key under the prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	var keys []string
	if err := s.scan(ctx, func(redisKey string) error {
		keys = append(keys, redisKey)
		return nil
	}); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, s.prefix, err)
	}
	return nil
}

func (s *RedisStore) scan(ctx context.Context, fn func(redisKey string) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return domain.CacheError(domain.ErrCodeCacheUnavailable, s.prefix, err)
		}
	}
	if err := iter.Err(); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, s.prefix, err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.CacheError(domain.ErrCodeCacheUnavailable, s.client.Options().Addr, err)
	}
	return nil
}

func (s *RedisStore) Name() string { return string(KindRedis) }

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ports.CacheStore = (*RedisStore)(nil)
