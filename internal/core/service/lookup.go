// Package service orchestrates metadata lookups: identifier canonicalization,
// cached retrieval, and signature verification.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

const (
	// DefaultBatchLimit bounds concurrent fetches in GetAll.
	DefaultBatchLimit = 4

	// DefaultRetention is how long stale entries with validators survive Tidy.
	DefaultRetention = 7 * 24 * time.Hour
)

// RequestOptions controls a single lookup.
type RequestOptions struct {
	// Refresh skips the cache read. The result is still stored.
	Refresh bool

	// Explain records a per-anchor trace. It is also on when the service
	// was built with WithExplain.
	Explain bool
}

// Result is the outcome of one identifier in a batch.
type Result struct {
	Identifier string
	Response   *domain.MetadataResponse
	Err        error
}

// Lookup resolves identifiers into verified metadata responses.
type Lookup struct {
	fetcher   ports.MetadataFetcher
	verifier  ports.TrustVerifier
	opener    ports.DocumentOpener
	cache     ports.CacheStore
	policy    domain.IdentifierPolicy
	explain   bool
	retention time.Duration
	logger    *zap.Logger
	metrics   ports.MetricsRecorder
	clock     ports.Clock
}

// Option configures a Lookup.
type Option func(*Lookup)

// WithVerifier sets the trust verifier. Without one every result is
// not_attempted.
func WithVerifier(v ports.TrustVerifier) Option {
	return func(l *Lookup) { l.verifier = v }
}

// WithOpener sets how local files are opened by Open.
func WithOpener(o ports.DocumentOpener) Option {
	return func(l *Lookup) { l.opener = o }
}

// WithCache gives the service access to the cache for Tidy and Purge. It
// must be the store the fetcher reads through.
func WithCache(store ports.CacheStore) Option {
	return func(l *Lookup) { l.cache = store }
}

// WithIdentifierPolicy sets how literal identifiers are sent.
func WithIdentifierPolicy(p domain.IdentifierPolicy) Option {
	return func(l *Lookup) { l.policy = p }
}

// WithExplain turns on explanation traces for every lookup.
func WithExplain(explain bool) Option {
	return func(l *Lookup) { l.explain = explain }
}

// WithRetention sets how long Tidy keeps stale entries that can still be
// revalidated.
func WithRetention(d time.Duration) Option {
	return func(l *Lookup) { l.retention = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Lookup) { l.logger = logger }
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(r ports.MetricsRecorder) Option {
	return func(l *Lookup) { l.metrics = r }
}

// WithClock sets the clock used by Tidy.
func WithClock(c ports.Clock) Option {
	return func(l *Lookup) { l.clock = c }
}

// NewLookup creates a lookup service over fetcher.
func NewLookup(fetcher ports.MetadataFetcher, opts ...Option) *Lookup {
	l := &Lookup{
		fetcher:   fetcher,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.clock == nil {
		l.clock = ports.RealClock{}
	}
	return l
}

// Identifier canonicalizes raw under the configured policy.
func (l *Lookup) Identifier(raw string) (domain.EntityIdentifier, error) {
	return domain.NewEntityIdentifier(raw, l.policy)
}

// Get fetches and verifies the document for raw. An empty identifier
// requests the aggregate. Malformed hashed identifiers fail before any
// request is made.
func (l *Lookup) Get(ctx context.Context, raw string, opts RequestOptions) (*domain.MetadataResponse, error) {
	id, err := l.Identifier(raw)
	if err != nil {
		return nil, err
	}

	resp, err := l.fetcher.Fetch(ctx, id, ports.FetchOptions{
		Mode:         domain.ModeGet,
		ForceRefresh: opts.Refresh,
	})
	if err != nil {
		return resp, err
	}
	return l.verify(resp, opts.Explain), nil
}

// List fetches the aggregate of all entities.
func (l *Lookup) List(ctx context.Context, opts RequestOptions) (*domain.MetadataResponse, error) {
	return l.Get(ctx, "", opts)
}

// Exists reports whether the service knows raw, without downloading it.
// A non-2xx answer is reported as false with a nil error.
func (l *Lookup) Exists(ctx context.Context, raw string) (bool, error) {
	id, err := l.Identifier(raw)
	if err != nil {
		return false, err
	}
	_, err = l.fetcher.Fetch(ctx, id, ports.FetchOptions{Mode: domain.ModeExists})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrHTTPStatus):
		return false, nil
	default:
		return false, err
	}
}

// GetAll resolves ids with at most limit fetches in flight. Results are in
// the order of ids; a failing identifier does not stop the others.
func (l *Lookup) GetAll(ctx context.Context, ids []string, limit int, opts RequestOptions) []Result {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, raw := range ids {
		g.Go(func() error {
			resp, err := l.Get(gctx, raw, opts)
			results[i] = Result{Identifier: raw, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Open reads and verifies a local metadata document.
func (l *Lookup) Open(path string, opts RequestOptions) (*domain.MetadataResponse, error) {
	if l.opener == nil {
		return nil, domain.ConfigError("no document opener configured")
	}
	resp, err := l.opener.Open(path)
	if err != nil {
		return nil, err
	}
	return l.verify(resp, opts.Explain), nil
}

// Anchors describes the configured trust anchors.
func (l *Lookup) Anchors() []domain.TrustAnchor {
	if l.verifier == nil {
		return nil
	}
	return l.verifier.Anchors()
}

// Tidy removes stale cache entries and returns how many were removed.
func (l *Lookup) Tidy(ctx context.Context) (int, error) {
	if l.cache == nil {
		return 0, nil
	}
	removed, err := l.cache.Prune(ctx, l.clock.Now(), l.retention)
	if err != nil {
		return removed, err
	}
	l.logger.Info("cache tidied",
		zap.String("cache", l.cache.Name()),
		zap.Int("removed", removed))
	return removed, nil
}

// Purge removes every cache entry.
func (l *Lookup) Purge(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Clear(ctx); err != nil {
		return err
	}
	l.logger.Info("cache purged", zap.String("cache", l.cache.Name()))
	return nil
}

// Close releases the cache backend.
func (l *Lookup) Close() error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Close()
}

func (l *Lookup) verify(resp *domain.MetadataResponse, explain bool) *domain.MetadataResponse {
	if l.verifier == nil || !resp.OK() || resp.Len() == 0 {
		return resp
	}
	result := l.verifier.Verify(resp.Body(), explain || l.explain)
	if l.metrics != nil {
		l.metrics.RecordVerification(result.State)
	}
	if result.State == domain.Failed {
		l.logger.Debug("metadata not verified",
			zap.String("entity_id", resp.Identifier().String()),
			zap.String("url", resp.SourceURL()),
			zap.Bool("malformed", result.Malformed))
	}
	return resp.WithVerification(result)
}
