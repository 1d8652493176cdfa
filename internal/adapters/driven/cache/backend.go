// Package cache provides the CacheStore backends: disabled, in-memory,
// file (LevelDB) and Redis. A backend is chosen once, at client
// construction, from Settings.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// Kind names a cache backend.
type Kind string

const (
	KindDisabled Kind = "disabled"
	KindMemory   Kind = "memory"
	KindFile     Kind = "file"
	KindRedis    Kind = "redis"
)

const (
	// DefaultPath is where the file backend keeps its database.
	DefaultPath = "tmp/cache/mdqt"

	// DefaultAddress is the Redis server used when none is configured.
	DefaultAddress = "localhost:6379"

	// DefaultPrefix namespaces Redis keys.
	DefaultPrefix = "mdqt:"

	// pingTimeout bounds the reachability check made when Redis is opened.
	pingTimeout = 2 * time.Second

	// DefaultRetention is how long stale entries with validators are kept
	// for revalidation before maintenance removes them.
	DefaultRetention = 7 * 24 * time.Hour
)

// Settings selects and parameterizes a backend.
type Settings struct {
	Kind Kind

	// Path is the file backend directory.
	Path string

	// Address, Password, DB and Prefix configure the Redis backend.
	Address  string
	Password string
	DB       int
	Prefix   string

	// Retention bounds how long stale entries are kept.
	Retention time.Duration
}

// warnUnreachable pings a Redis store once. An unreachable server is not
// fatal: lookups fall back to the network until it returns.
func warnUnreachable(store *RedisStore, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis cache unreachable, continuing without it until it recovers",
			zap.String("address", store.client.Options().Addr),
			zap.Error(err))
	}
}

// Open resolves settings to a CacheStore. Unknown kinds are a configuration
// error.
func Open(settings Settings, logger *zap.Logger) (ports.CacheStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Retention <= 0 {
		settings.Retention = DefaultRetention
	}

	var (
		store ports.CacheStore
		err   error
	)
	switch settings.Kind {
	case KindDisabled, "":
		store = NewDisabledStore()
	case KindMemory:
		store = NewInMemoryStore()
	case KindFile:
		path := settings.Path
		if path == "" {
			path = DefaultPath
		}
		store, err = NewFileStore(path, logger)
	case KindRedis:
		addr := settings.Address
		if addr == "" {
			addr = DefaultAddress
		}
		prefix := settings.Prefix
		if prefix == "" {
			prefix = DefaultPrefix
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: settings.Password,
			DB:       settings.DB,
		})
		redisStore := NewRedisStore(client, prefix, settings.Retention)
		warnUnreachable(redisStore, logger)
		store = redisStore
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown cache backend %q", settings.Kind))
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("cache backend opened", zap.String("backend", store.Name()))
	return store, nil
}
