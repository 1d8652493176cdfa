package ports

import (
	"context"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// CacheStore is the port interface for the HTTP response cache.
// Implementations must be safe for concurrent use.
type CacheStore interface {
	// Get returns the entry stored under key, or domain.ErrCacheMiss.
	// Entries that cannot be decoded are reported as domain.ErrCacheCorrupt.
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)

	// Put stores entry under entry.Key, replacing any previous entry.
	Put(ctx context.Context, entry *domain.CacheEntry) error

	// Delete removes a single entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Prune removes entries for which domain.CacheEntry.Prunable holds and
	// returns how many were removed.
	Prune(ctx context.Context, now time.Time, grace time.Duration) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Name identifies the backend in logs ("disabled", "memory", "file", "redis").
	Name() string

	// Close releases backend resources.
	Close() error
}
