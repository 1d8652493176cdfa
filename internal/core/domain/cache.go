package domain

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheOutcome records how the cache took part in a lookup.
type CacheOutcome string

const (
	// CacheHit means a fresh entry was served without a network call.
	CacheHit CacheOutcome = "hit"

	// CacheRevalidated means a stale entry was confirmed with a 304.
	CacheRevalidated CacheOutcome = "revalidated"

	// CacheMiss means the document came from the network. A disabled cache
	// always misses.
	CacheMiss CacheOutcome = "miss"

	// CacheBypassed means the cache was not consulted (forced refresh,
	// existence checks, local files).
	CacheBypassed CacheOutcome = "bypassed"
)

// CacheEntry is a stored HTTP response keyed by canonical request URL.
type CacheEntry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
	Freshness
}

// Freshness is the caching policy derived from response headers.
type Freshness struct {
	// Lifetime is how long after StoredAt the entry may be served as-is.
	Lifetime time.Duration `json:"lifetime"`

	// ETag and LastModified are validators for conditional requests.
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`

	// NoCache entries are stored but always revalidated.
	NoCache bool `json:"no_cache,omitempty"`
}

// IsFresh reports whether the entry may be served without revalidation.
func (e *CacheEntry) IsFresh(now time.Time) bool {
	if e.NoCache || e.Lifetime <= 0 {
		return false
	}
	return now.Before(e.ExpiresAt())
}

// ExpiresAt returns the time the entry becomes stale.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.Lifetime)
}

// HasValidators reports whether a conditional request can revalidate the entry.
func (e *CacheEntry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Prunable reports whether a maintenance pass should remove the entry: it is
// stale and cannot be revalidated, or it has been stale for longer than grace.
func (e *CacheEntry) Prunable(now time.Time, grace time.Duration) bool {
	if e.IsFresh(now) {
		return false
	}
	if !e.HasValidators() {
		return true
	}
	return now.After(e.ExpiresAt().Add(grace))
}

// Refresh returns a copy of the entry re-stamped after a 304 response.
// Freshness headers on the 304 replace the stored ones.
func (e *CacheEntry) Refresh(header http.Header, now time.Time) *CacheEntry {
	refreshed := *e
	refreshed.StoredAt = now
	if header != nil {
		merged := e.Header.Clone()
		if merged == nil {
			merged = http.Header{}
		}
		merged.Del("Age")
		merged.Del("Date")
		for _, name := range []string{"Cache-Control", "Expires", "Date", "Age", "ETag", "Last-Modified"} {
			if v := header.Get(name); v != "" {
				merged.Set(name, v)
			}
		}
		refreshed.Header = merged
		if f, ok := ParseFreshness(merged, now); ok {
			refreshed.Freshness = f
		}
	}
	return &refreshed
}

// ParseFreshness derives the caching policy for a private cache from
// response headers. The lifetime is what remains after the response's
// current age, so an entry aged by an upstream cache is not fresh twice.
// The second result is false when the response must not be stored:
// Cache-Control no-store, or no remaining lifetime and no validators.
func ParseFreshness(header http.Header, now time.Time) (Freshness, bool) {
	directives := parseCacheControl(header.Get("Cache-Control"))
	if _, ok := directives["no-store"]; ok {
		return Freshness{}, false
	}

	f := Freshness{
		ETag:         header.Get("ETag"),
		LastModified: header.Get("Last-Modified"),
	}
	if _, ok := directives["no-cache"]; ok {
		f.NoCache = true
	}

	if v, ok := directives["max-age"]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			f.Lifetime = time.Duration(secs) * time.Second
		}
	} else if exp := header.Get("Expires"); exp != "" {
		if expires, err := http.ParseTime(exp); err == nil {
			base := now
			if date, err := http.ParseTime(header.Get("Date")); err == nil {
				base = date
			}
			if d := expires.Sub(base); d > 0 {
				f.Lifetime = d
			}
		}
	}
	if f.Lifetime > 0 {
		f.Lifetime -= currentAge(header, now)
		if f.Lifetime < 0 {
			f.Lifetime = 0
		}
	}

	if f.Lifetime <= 0 && f.ETag == "" && f.LastModified == "" {
		return Freshness{}, false
	}
	return f, true
}

// currentAge is the larger of the Age header and the time elapsed since the
// Date header. A Date ahead of now counts as zero.
func currentAge(header http.Header, now time.Time) time.Duration {
	var age time.Duration
	if v := strings.TrimSpace(header.Get("Age")); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			age = time.Duration(secs) * time.Second
		}
	}
	if date, err := http.ParseTime(header.Get("Date")); err == nil {
		if apparent := now.Sub(date); apparent > age {
			age = apparent
		}
	}
	return age
}

// parseCacheControl splits a Cache-Control header into lower-cased
// directives. Values have surrounding quotes removed.
func parseCacheControl(value string) map[string]string {
	directives := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, _ := strings.Cut(part, "=")
		directives[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return directives
}
