package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// InMemoryStore keeps entries in a map for the life of the process. Thread-safe.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*domain.CacheEntry)}
}

// Get returns a copy of the entry stored under key.
func (s *InMemoryStore) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[key]; ok {
		return cloneEntry(entry), nil
	}
	return nil, domain.ErrCacheMiss
}

// Put stores a copy of entry.
func (s *InMemoryStore) Put(_ context.Context, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = cloneEntry(entry)
	return nil
}

// Delete removes key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Prune removes prunable entries.
func (s *InMemoryStore) Prune(_ context.Context, now time.Time, grace time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if entry.Prunable(now, grace) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*domain.CacheEntry)
	return nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) Name() string { return string(KindMemory) }

func (s *InMemoryStore) Close() error { return nil }

// Ensure InMemoryStore implements ports.CacheStore
var _ ports.CacheStore = (*InMemoryStore)(nil)
