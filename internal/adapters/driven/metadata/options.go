package metadata

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// ClientOption is a functional option for configuring the retrieval client.
type ClientOption func(*clientOptions)

// Clock provides time functionality for testing.
type Clock = ports.Clock

// RealClock uses the standard time package.
type RealClock = ports.RealClock

// CacheDecisionFunc observes how the cache took part in a retrieval. It is
// called synchronously on the lookup path and must not block.
type CacheDecisionFunc func(key string, outcome domain.CacheOutcome)

type clientOptions struct {
	cache           ports.CacheStore
	inspector       ports.DocumentInspector
	transport       TransportConfig
	httpClient      *http.Client
	userAgent       string
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder
	onCacheDecision CacheDecisionFunc
	clock           Clock
}

// WithCache returns an option that sets the response cache. Without it the
// client behaves as if caching were disabled.
func WithCache(store ports.CacheStore) ClientOption {
	return func(o *clientOptions) {
		o.cache = store
	}
}

// WithInspector returns an option that replaces the document inspector.
func WithInspector(inspector ports.DocumentInspector) ClientOption {
	return func(o *clientOptions) {
		o.inspector = inspector
	}
}

// WithTransport returns an option that sets timeouts, the redirect limit
// and TLS verification. Inconsistent timeouts are normalized as in
// NewHTTPClient.
func WithTransport(cfg TransportConfig) ClientOption {
	return func(o *clientOptions) {
		o.transport = cfg
	}
}

// WithHTTPClient returns an option that replaces the HTTP client built from
// the transport config. TLS verification is still reported from the
// transport config.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithUserAgent returns an option that sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) {
		o.userAgent = ua
	}
}

// WithLogger returns an option that sets the logger for the client.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetricsRecorder returns an option that sets the metrics recorder.
// When set, retrievals and cache outcomes will be recorded as metrics.
func WithMetricsRecorder(recorder ports.MetricsRecorder) ClientOption {
	return func(o *clientOptions) {
		o.metricsRecorder = recorder
	}
}

// WithOnCacheDecision returns an option that registers a cache observer.
func WithOnCacheDecision(fn CacheDecisionFunc) ClientOption {
	return func(o *clientOptions) {
		o.onCacheDecision = fn
	}
}

// WithClock returns an option that sets a custom clock for time operations.
// Used for testing cache freshness without time.Sleep.
func WithClock(clock Clock) ClientOption {
	return func(o *clientOptions) {
		o.clock = clock
	}
}
