//go:build unit

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

func TestInMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewInMemoryStore())
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("https://mdq.example.org/entities/%d", i%5)
			_ = store.Put(ctx, testEntry(key, time.Hour, ""))
			_, _ = store.Get(ctx, key)
			_, _ = store.Prune(ctx, epoch, time.Hour)
		}(i)
	}
	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}

func TestDisabledStore_AlwaysMisses(t *testing.T) {
	store := NewDisabledStore()
	ctx := context.Background()
	entry := testEntry("https://mdq.example.org/entities", time.Hour, "")

	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Get(ctx, entry.Key); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
	if store.Name() != "disabled" {
		t.Errorf("Name() = %q", store.Name())
	}
}
