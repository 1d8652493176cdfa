package cache

import (
	"context"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// DisabledStore is the cache used when caching is turned off. Every lookup
// misses and writes are discarded, so a lookup behaves exactly as it would
// against an empty cache.
type DisabledStore struct{}

// NewDisabledStore creates a store that never holds anything.
func NewDisabledStore() *DisabledStore {
	return &DisabledStore{}
}

func (*DisabledStore) Get(context.Context, string) (*domain.CacheEntry, error) {
	return nil, domain.ErrCacheMiss
}

func (*DisabledStore) Put(context.Context, *domain.CacheEntry) error { return nil }

func (*DisabledStore) Delete(context.Context, string) error { return nil }

func (*DisabledStore) Prune(context.Context, time.Time, time.Duration) (int, error) { return 0, nil }

func (*DisabledStore) Clear(context.Context) error { return nil }

func (*DisabledStore) Name() string { return string(KindDisabled) }

func (*DisabledStore) Close() error { return nil }

var _ ports.CacheStore = (*DisabledStore)(nil)
