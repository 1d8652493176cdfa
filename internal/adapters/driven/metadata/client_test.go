//go:build unit

package metadata

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/cache"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
	fixtures "github.com/ausaccessfed/aaf-mdqt/testfixtures/metadata"
)

const testEntityID = "https://idp.example.org/idp/shibboleth"

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustID(t *testing.T, raw string) domain.EntityIdentifier {
	t.Helper()
	id, err := domain.NewEntityIdentifier(raw, domain.SendLiteral)
	if err != nil {
		t.Fatalf("NewEntityIdentifier(%q) error = %v", raw, err)
	}
	return id
}

func pathFor(t *testing.T, raw string) string {
	t.Helper()
	return "/" + mustID(t, raw).RequestPath()
}

func newTestClient(t *testing.T, srv *fixtures.Server, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{WithLogger(zaptest.NewLogger(t))}
	return NewClient(srv.URL, append(base, opts...)...)
}

func get(t *testing.T, c *Client, raw string) (*domain.MetadataResponse, error) {
	t.Helper()
	return c.Fetch(context.Background(), mustID(t, raw), ports.FetchOptions{Mode: domain.ModeGet})
}

func TestClient_CacheRoundTrip(t *testing.T) {
	srv := fixtures.NewServer(t)
	body := fixtures.EntityMetadata(testEntityID)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   body,
	})
	client := newTestClient(t, srv, WithCache(cache.NewInMemoryStore()), WithClock(newFakeClock()))

	first, err := get(t, client, testEntityID)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	second, err := get(t, client, testEntityID)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	if srv.TotalHits() != 1 {
		t.Errorf("server hits = %d, want 1", srv.TotalHits())
	}
	if first.CacheOutcome() != domain.CacheMiss || second.CacheOutcome() != domain.CacheHit {
		t.Errorf("outcomes = %s, %s; want miss, hit", first.CacheOutcome(), second.CacheOutcome())
	}
	if string(second.Body()) != string(body) {
		t.Error("cached body differs from the original")
	}
	if second.EntityID() != first.EntityID() || second.Status() != http.StatusOK {
		t.Errorf("cached response = %s %d", second.EntityID(), second.Status())
	}
}

func TestClient_DisabledCacheBehavesLikeEmptyCache(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})

	disabled := newTestClient(t, srv, WithCache(cache.NewDisabledStore()))
	empty := newTestClient(t, srv, WithCache(cache.NewInMemoryStore()))

	a, errA := get(t, disabled, testEntityID)
	b, errB := get(t, empty, testEntityID)
	if errA != nil || errB != nil {
		t.Fatalf("Fetch() errors = %v, %v", errA, errB)
	}
	if a.CacheOutcome() != b.CacheOutcome() {
		t.Errorf("outcomes differ: %s vs %s", a.CacheOutcome(), b.CacheOutcome())
	}
	if string(a.Body()) != string(b.Body()) || a.Status() != b.Status() || a.EntityID() != b.EntityID() {
		t.Error("disabled cache result differs from empty cache result")
	}

	// The disabled cache never serves a hit.
	again, _ := get(t, disabled, testEntityID)
	if again.CacheOutcome() != domain.CacheMiss {
		t.Errorf("disabled cache outcome = %s, want miss", again.CacheOutcome())
	}
}

func TestClient_AgedResponseIsNotFreshTwice(t *testing.T) {
	tests := []struct {
		name     string
		age      string
		advance  time.Duration
		outcome  domain.CacheOutcome
		wantHits int
	}{
		{name: "fully aged", age: "60", outcome: domain.CacheMiss, wantHits: 2},
		{name: "partly aged and fresh", age: "30", advance: 20 * time.Second, outcome: domain.CacheHit, wantHits: 1},
		{name: "partly aged then stale", age: "30", advance: 31 * time.Second, outcome: domain.CacheMiss, wantHits: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := fixtures.NewServer(t)
			path := pathFor(t, testEntityID)
			srv.Handle(path, fixtures.Response{
				Header: http.Header{"Cache-Control": {"max-age=60"}, "Age": {tc.age}},
				Body:   fixtures.EntityMetadata(testEntityID),
			})
			clock := newFakeClock()
			client := newTestClient(t, srv, WithCache(cache.NewInMemoryStore()), WithClock(clock))

			if _, err := get(t, client, testEntityID); err != nil {
				t.Fatalf("first Fetch() error = %v", err)
			}
			clock.Advance(tc.advance)
			resp, err := get(t, client, testEntityID)
			if err != nil {
				t.Fatalf("second Fetch() error = %v", err)
			}

			if resp.CacheOutcome() != tc.outcome {
				t.Errorf("outcome = %s, want %s", resp.CacheOutcome(), tc.outcome)
			}
			if srv.Hits(path) != tc.wantHits {
				t.Errorf("server hits = %d, want %d", srv.Hits(path), tc.wantHits)
			}
		})
	}
}

func TestClient_StaleEntryIsRevalidated(t *testing.T) {
	srv := fixtures.NewServer(t)
	path := pathFor(t, testEntityID)
	srv.Handle(path, fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=60"}, "ETag": {`"v1"`}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})
	clock := newFakeClock()
	store := cache.NewInMemoryStore()
	client := newTestClient(t, srv, WithCache(store), WithClock(clock))

	if _, err := get(t, client, testEntityID); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	clock.Advance(2 * time.Minute)

	resp, err := get(t, client, testEntityID)
	if err != nil {
		t.Fatalf("revalidating Fetch() error = %v", err)
	}
	if resp.CacheOutcome() != domain.CacheRevalidated {
		t.Errorf("outcome = %s, want revalidated", resp.CacheOutcome())
	}
	if srv.Hits(path) != 2 {
		t.Errorf("server hits = %d, want 2", srv.Hits(path))
	}
	if got := srv.LastRequest().Header.Get("If-None-Match"); got != `"v1"` {
		t.Errorf("If-None-Match = %q", got)
	}
	if resp.Len() == 0 {
		t.Error("revalidated response should carry the cached body")
	}

	// The refreshed entry is fresh again.
	third, _ := get(t, client, testEntityID)
	if third.CacheOutcome() != domain.CacheHit || srv.Hits(path) != 2 {
		t.Errorf("after revalidation: outcome = %s, hits = %d", third.CacheOutcome(), srv.Hits(path))
	}
}

func TestClient_FreshnessDirectives(t *testing.T) {
	tests := []struct {
		name        string
		header      http.Header
		wantSecond  domain.CacheOutcome
		wantHits    int
		wantEntries int
	}{
		{"max-age", http.Header{"Cache-Control": {"max-age=300"}}, domain.CacheHit, 1, 1},
		{"no-store", http.Header{"Cache-Control": {"no-store"}}, domain.CacheMiss, 2, 0},
		{"no-cache with etag", http.Header{"Cache-Control": {"no-cache"}, "ETag": {`"x"`}}, domain.CacheRevalidated, 2, 1},
		{"no headers", http.Header{}, domain.CacheMiss, 2, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := fixtures.NewServer(t)
			srv.Handle(pathFor(t, testEntityID), fixtures.Response{
				Header: tc.header,
				Body:   fixtures.EntityMetadata(testEntityID),
			})
			store := cache.NewInMemoryStore()
			client := newTestClient(t, srv, WithCache(store), WithClock(newFakeClock()))

			if _, err := get(t, client, testEntityID); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			second, err := get(t, client, testEntityID)
			if err != nil {
				t.Fatalf("second Fetch() error = %v", err)
			}
			if second.CacheOutcome() != tc.wantSecond {
				t.Errorf("second outcome = %s, want %s", second.CacheOutcome(), tc.wantSecond)
			}
			if srv.TotalHits() != tc.wantHits {
				t.Errorf("server hits = %d, want %d", srv.TotalHits(), tc.wantHits)
			}
			if store.Len() != tc.wantEntries {
				t.Errorf("stored entries = %d, want %d", store.Len(), tc.wantEntries)
			}
		})
	}
}

func TestClient_ForceRefreshBypassesCacheRead(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})
	client := newTestClient(t, srv, WithCache(cache.NewInMemoryStore()), WithClock(newFakeClock()))
	id := mustID(t, testEntityID)

	forced, err := client.Fetch(context.Background(), id, ports.FetchOptions{ForceRefresh: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if forced.CacheOutcome() != domain.CacheBypassed {
		t.Errorf("outcome = %s, want bypassed", forced.CacheOutcome())
	}

	// The forced result was still stored.
	normal, _ := client.Fetch(context.Background(), id, ports.FetchOptions{})
	if normal.CacheOutcome() != domain.CacheHit || srv.TotalHits() != 1 {
		t.Errorf("outcome = %s, hits = %d; want hit after 1 request", normal.CacheOutcome(), srv.TotalHits())
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := fixtures.NewServer(t)
	url := srv.URL
	srv.Close()

	store := cache.NewInMemoryStore()
	client := NewClient(url, WithCache(store), WithLogger(zaptest.NewLogger(t)))

	resp, err := get(t, client, testEntityID)
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("Fetch() error = %v, want ErrUnreachable", err)
	}
	if resp != nil {
		t.Error("transport failures must not return a response")
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.URL == "" {
		t.Error("error should name the URL")
	}
	if store.Len() != 0 {
		t.Error("cache must be untouched on error")
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Body:  fixtures.EntityMetadata(testEntityID),
		Delay: 2 * time.Second,
	})
	cfg := DefaultTransportConfig()
	cfg.RequestTimeout = 100 * time.Millisecond
	client := newTestClient(t, srv, WithTransport(cfg))

	_, err := get(t, client, testEntityID)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Fetch() error = %v, want ErrTimeout", err)
	}
}

func TestClient_Redirects(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Redirect(pathFor(t, testEntityID), "/hop1")
	srv.Redirect("/hop1", "/hop2")
	srv.Redirect("/hop2", "/hop3")
	srv.Redirect("/hop3", "/hop4")
	srv.Handle("/hop4", fixtures.Response{Body: fixtures.EntityMetadata(testEntityID)})

	t.Run("over the limit", func(t *testing.T) {
		client := newTestClient(t, srv)
		_, err := get(t, client, testEntityID)
		if !errors.Is(err, domain.ErrTooManyRedirects) {
			t.Fatalf("Fetch() error = %v, want ErrTooManyRedirects", err)
		}
	})

	t.Run("within the limit", func(t *testing.T) {
		cfg := DefaultTransportConfig()
		cfg.MaxRedirects = 4
		client := newTestClient(t, srv, WithTransport(cfg))
		resp, err := get(t, client, testEntityID)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !resp.OK() {
			t.Errorf("Status = %d", resp.Status())
		}
	})
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := fixtures.NewServer(t)
	store := cache.NewInMemoryStore()
	client := newTestClient(t, srv, WithCache(store))

	resp, err := get(t, client, "https://unknown.example.org")
	if !errors.Is(err, domain.ErrHTTPStatus) {
		t.Fatalf("Fetch() error = %v, want ErrHTTPStatus", err)
	}
	if resp == nil || resp.Status() != http.StatusNotFound {
		t.Fatalf("response = %v, want status 404", resp)
	}
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Status != http.StatusNotFound || appErr.Identifier != "https://unknown.example.org" {
		t.Errorf("AppError = %+v", appErr)
	}
	if store.Len() != 0 {
		t.Error("non-200 responses must not be cached")
	}
}

func TestClient_ExistsUsesHEAD(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})
	store := cache.NewInMemoryStore()
	client := newTestClient(t, srv, WithCache(store))

	resp, err := client.Fetch(context.Background(), mustID(t, testEntityID), ports.FetchOptions{Mode: domain.ModeExists})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if srv.LastRequest().Method != http.MethodHead {
		t.Errorf("method = %s, want HEAD", srv.LastRequest().Method)
	}
	if resp.CacheOutcome() != domain.CacheBypassed || resp.Len() != 0 {
		t.Errorf("outcome = %s, body = %d bytes", resp.CacheOutcome(), resp.Len())
	}
	if store.Len() != 0 {
		t.Error("existence checks must not write the cache")
	}

	_, err = client.Fetch(context.Background(), mustID(t, "https://absent.example.org"), ports.FetchOptions{Mode: domain.ModeExists})
	if !errors.Is(err, domain.ErrHTTPStatus) {
		t.Errorf("missing entity error = %v, want ErrHTTPStatus", err)
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{Body: fixtures.EntityMetadata(testEntityID)})
	client := newTestClient(t, srv, WithUserAgent("mdqt/1.2.3"))

	if _, err := get(t, client, testEntityID); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	h := srv.LastRequest().Header
	if h.Get("Accept") != "application/samlmetadata+xml" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}
	if h.Get("Accept-Charset") != "utf-8" {
		t.Errorf("Accept-Charset = %q", h.Get("Accept-Charset"))
	}
	if h.Get("User-Agent") != "mdqt/1.2.3" {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
}

func TestClient_HashedIdentifierPath(t *testing.T) {
	hashed := domain.HashIdentifier(testEntityID)
	srv := fixtures.NewServer(t)
	srv.Handle("/entities/%7Bsha1%7D"+hashed[len("{sha1}"):], fixtures.Response{Body: fixtures.EntityMetadata(testEntityID)})
	client := newTestClient(t, srv)

	resp, err := get(t, client, hashed)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := resp.EntityIDs(); len(got) != 1 || got[0] != testEntityID {
		t.Errorf("EntityIDs() = %v", got)
	}
}

func TestClient_AggregateListing(t *testing.T) {
	ids := []string{"https://a.example.org", "https://b.example.org"}
	srv := fixtures.NewServer(t)
	srv.Handle("/entities", fixtures.Response{Body: fixtures.AggregateMetadata(ids)})
	client := newTestClient(t, srv)

	resp, err := client.Fetch(context.Background(), domain.AggregateIdentifier(), ports.FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !resp.IsAggregate() {
		t.Error("IsAggregate() = false for an EntitiesDescriptor")
	}
	if got := resp.EntityIDs(); len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Errorf("EntityIDs() = %v, want %v", got, ids)
	}
}

func TestClient_CacheDecisionObserver(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})

	var decisions []domain.CacheOutcome
	var keys []string
	client := newTestClient(t, srv,
		WithCache(cache.NewInMemoryStore()),
		WithClock(newFakeClock()),
		WithOnCacheDecision(func(key string, outcome domain.CacheOutcome) {
			keys = append(keys, key)
			decisions = append(decisions, outcome)
		}),
	)

	_, _ = get(t, client, testEntityID)
	_, _ = get(t, client, testEntityID)

	if len(decisions) != 2 || decisions[0] != domain.CacheMiss || decisions[1] != domain.CacheHit {
		t.Fatalf("decisions = %v, want [miss hit]", decisions)
	}
	if keys[0] != client.RequestURL(mustID(t, testEntityID)) {
		t.Errorf("key = %q", keys[0])
	}
}

// failingStore reports every operation as unavailable.
type failingStore struct{ *cache.DisabledStore }

func (failingStore) Get(context.Context, string) (*domain.CacheEntry, error) {
	return nil, domain.CacheError(domain.ErrCodeCacheUnavailable, "k", errors.New("connection refused"))
}

func (failingStore) Put(context.Context, *domain.CacheEntry) error {
	return domain.CacheError(domain.ErrCodeCacheUnavailable, "k", errors.New("connection refused"))
}

func TestClient_CacheFailuresAreAbsorbed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{
		Header: http.Header{"Cache-Control": {"max-age=300"}},
		Body:   fixtures.EntityMetadata(testEntityID),
	})
	client := NewClient(srv.URL, WithCache(failingStore{cache.NewDisabledStore()}), WithLogger(zap.New(core)))

	resp, err := get(t, client, testEntityID)
	if err != nil {
		t.Fatalf("Fetch() error = %v, cache failures must not fail lookups", err)
	}
	if resp.CacheOutcome() != domain.CacheMiss {
		t.Errorf("outcome = %s, want miss", resp.CacheOutcome())
	}
	if logs.FilterMessage("cache read failed, treating as miss").Len() != 1 {
		t.Error("expected a warning for the failed cache read")
	}
	if logs.FilterMessage("cache write failed").Len() != 1 {
		t.Error("expected a warning for the failed cache write")
	}
}

func TestClient_TLSVerification(t *testing.T) {
	srv := fixtures.NewTLSServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{Body: fixtures.EntityMetadata(testEntityID)})

	t.Run("verified by default", func(t *testing.T) {
		client := newTestClient(t, srv)
		if _, err := get(t, client, testEntityID); !errors.Is(err, domain.ErrUnreachable) {
			t.Fatalf("Fetch() error = %v, want ErrUnreachable for an untrusted certificate", err)
		}
	})

	t.Run("explicit opt-out is observable", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		cfg := DefaultTransportConfig()
		cfg.TLSVerify = false
		client := NewClient(srv.URL, WithTransport(cfg), WithLogger(zap.New(core)))

		resp, err := get(t, client, testEntityID)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.TLSVerified() {
			t.Error("TLSVerified() = true with verification disabled")
		}
		if logs.FilterMessage("TLS certificate verification disabled for MDQ service").Len() != 1 {
			t.Error("expected a warning when TLS verification is disabled")
		}
	})
}

// recordingMetrics captures calls for assertions.
type recordingMetrics struct {
	fetches  []string
	outcomes []domain.CacheOutcome
}

func (r *recordingMetrics) RecordFetch(mode domain.FetchMode, result string, _ time.Duration) {
	r.fetches = append(r.fetches, mode.String()+":"+result)
}

func (r *recordingMetrics) RecordCacheOutcome(outcome domain.CacheOutcome) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) RecordVerification(domain.VerificationState) {}

func TestClient_RecordsMetrics(t *testing.T) {
	srv := fixtures.NewServer(t)
	srv.Handle(pathFor(t, testEntityID), fixtures.Response{Body: fixtures.EntityMetadata(testEntityID)})
	rec := &recordingMetrics{}
	client := newTestClient(t, srv, WithMetricsRecorder(rec))

	_, _ = get(t, client, testEntityID)
	_, _ = get(t, client, "https://absent.example.org")

	want := []string{"get:ok", "get:http_status"}
	if len(rec.fetches) != 2 || rec.fetches[0] != want[0] || rec.fetches[1] != want[1] {
		t.Errorf("fetches = %v, want %v", rec.fetches, want)
	}
	if len(rec.outcomes) != 2 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}
