package cache

import (
	"bytes"
	"encoding/gob"
	"net/http"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

func init() {
	gob.Register(http.Header{})
}

// encodeEntry serializes an entry for the persistent backends.
func encodeEntry(entry *domain.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, domain.CacheError(domain.ErrCodeCacheCorrupt, entry.Key, err)
	}
	return buf.Bytes(), nil
}

// decodeEntry is the inverse of encodeEntry. Undecodable bytes are reported
// as ErrCacheCorrupt so callers can treat them as a miss.
func decodeEntry(key string, b []byte) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entry); err != nil {
		return nil, domain.CacheError(domain.ErrCodeCacheCorrupt, key, err)
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return &entry, nil
}

// cloneEntry deep-copies the mutable parts of an entry.
func cloneEntry(entry *domain.CacheEntry) *domain.CacheEntry {
	c := *entry
	c.Header = entry.Header.Clone()
	c.Body = append([]byte(nil), entry.Body...)
	return &c
}
