//go:build unit || integration

package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEntry(key string, lifetime time.Duration, etag string) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:      key,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"application/samlmetadata+xml"}},
		Body:     []byte("<EntityDescriptor entityID=\"" + key + "\"/>"),
		StoredAt: epoch,
		Freshness: domain.Freshness{
			Lifetime: lifetime,
			ETag:     etag,
		},
	}
}

// runStoreContract exercises behavior every CacheStore must share.
func runStoreContract(t *testing.T, store ports.CacheStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss on empty", func(t *testing.T) {
		if _, err := store.Get(ctx, "https://mdq.example.org/entities/absent"); !errors.Is(err, domain.ErrCacheMiss) {
			t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		entry := testEntry("https://mdq.example.org/entities/a", time.Hour, `"a1"`)
		if err := store.Put(ctx, entry); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := store.Get(ctx, entry.Key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got.Body) != string(entry.Body) {
			t.Errorf("Body = %q, want %q", got.Body, entry.Body)
		}
		if got.ETag != `"a1"` || got.Lifetime != time.Hour {
			t.Errorf("Freshness = %+v", got.Freshness)
		}
		if got.Header.Get("Content-Type") != "application/samlmetadata+xml" {
			t.Errorf("Header = %v", got.Header)
		}
		if !got.StoredAt.Equal(epoch) {
			t.Errorf("StoredAt = %v, want %v", got.StoredAt, epoch)
		}
	})

	t.Run("returned entry is a copy", func(t *testing.T) {
		key := "https://mdq.example.org/entities/copy"
		if err := store.Put(ctx, testEntry(key, time.Hour, "")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, _ := store.Get(ctx, key)
		got.Body[0] = 'X'
		again, _ := store.Get(ctx, key)
		if again.Body[0] == 'X' {
			t.Error("mutating a returned entry changed the stored entry")
		}
	})

	t.Run("delete", func(t *testing.T) {
		key := "https://mdq.example.org/entities/gone"
		_ = store.Put(ctx, testEntry(key, time.Hour, ""))
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := store.Get(ctx, key); !errors.Is(err, domain.ErrCacheMiss) {
			t.Fatalf("Get() after Delete error = %v, want ErrCacheMiss", err)
		}
		if err := store.Delete(ctx, key); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("prune", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		fresh := testEntry("https://mdq.example.org/entities/fresh", time.Hour, "")
		stale := testEntry("https://mdq.example.org/entities/stale", time.Minute, "")
		revalidatable := testEntry("https://mdq.example.org/entities/etag", time.Minute, `"v"`)
		for _, e := range []*domain.CacheEntry{fresh, stale, revalidatable} {
			if err := store.Put(ctx, e); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}

		n, err := store.Prune(ctx, epoch.Add(10*time.Minute), time.Hour)
		if err != nil {
			t.Fatalf("Prune() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Prune() removed %d, want 1", n)
		}
		if _, err := store.Get(ctx, stale.Key); !errors.Is(err, domain.ErrCacheMiss) {
			t.Error("stale entry without validators should be pruned")
		}
		if _, err := store.Get(ctx, fresh.Key); err != nil {
			t.Error("fresh entry should survive pruning")
		}
		if _, err := store.Get(ctx, revalidatable.Key); err != nil {
			t.Error("entry with validators should survive pruning within grace")
		}
	})

	t.Run("clear", func(t *testing.T) {
		_ = store.Put(ctx, testEntry("https://mdq.example.org/entities/x", time.Hour, ""))
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := store.Get(ctx, "https://mdq.example.org/entities/x"); !errors.Is(err, domain.ErrCacheMiss) {
			t.Fatal("Clear() should remove every entry")
		}
	})
}
