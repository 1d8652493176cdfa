// Package factory wires the driven adapters selected by a config.Config into
// a lookup service. It is the only place the driving adapters reach the
// concrete cache, transport and signature implementations.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/cache"
	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/metadata"
	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/metrics"
	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/signature"
	"github.com/ausaccessfed/aaf-mdqt/internal/config"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
)

// Option adjusts how the lookup service is built.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder
	userAgent       string
	onCacheDecision metadata.CacheDecisionFunc
}

// WithLogger sets the logger handed to every adapter.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(r ports.MetricsRecorder) Option {
	return func(o *options) { o.metricsRecorder = r }
}

// WithUserAgent sets the User-Agent used when the config does not name one.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithOnCacheDecision observes cache decisions of the retrieval client.
func WithOnCacheDecision(fn metadata.CacheDecisionFunc) Option {
	return func(o *options) { o.onCacheDecision = fn }
}

// NewLookup validates cfg and builds a lookup service from it. Trust anchor
// material is loaded here, so bad certificates fail construction.
func NewLookup(cfg *config.Config, opts ...Option) (*service.Lookup, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	userAgent := o.userAgent
	if cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}

	verifier, store, err := openBackends(cfg, o)
	if err != nil {
		return nil, err
	}

	client := metadata.NewClient(cfg.Service,
		metadata.WithCache(store),
		metadata.WithTransport(cfg.Transport()),
		metadata.WithUserAgent(userAgent),
		metadata.WithLogger(o.logger),
		metadata.WithMetricsRecorder(o.metricsRecorder),
		metadata.WithOnCacheDecision(o.onCacheDecision),
	)

	return service.NewLookup(client, serviceOptions(cfg, o, verifier, store)...), nil
}

// NewLocalLookup builds a lookup service that never contacts an MDQ
// service. It opens local files and maintains the cache, so the service URL
// may be empty.
func NewLocalLookup(cfg *config.Config, opts ...Option) (*service.Lookup, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if err := cfg.ValidateLocal(); err != nil {
		return nil, err
	}

	o := newOptions(opts)
	verifier, store, err := openBackends(cfg, o)
	if err != nil {
		return nil, err
	}
	return service.NewLookup(nil, serviceOptions(cfg, o, verifier, store)...), nil
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metricsRecorder == nil {
		o.metricsRecorder = metrics.NewNoopMetricsRecorder()
	}
	return o
}

func openBackends(cfg *config.Config, o *options) (*signature.XMLDsigVerifier, ports.CacheStore, error) {
	verifier, err := signature.NewXMLDsigVerifierFromRefs(cfg.TrustAnchors, signature.WithVerifierLogger(o.logger))
	if err != nil {
		return nil, nil, err
	}
	store, err := cache.Open(cfg.CacheSettings(), o.logger)
	if err != nil {
		return nil, nil, err
	}
	return verifier, store, nil
}

func serviceOptions(cfg *config.Config, o *options, verifier ports.TrustVerifier, store ports.CacheStore) []service.Option {
	return []service.Option{
		service.WithVerifier(verifier),
		service.WithOpener(metadata.NewFileOpener(metadata.WithLogger(o.logger))),
		service.WithCache(store),
		service.WithIdentifierPolicy(cfg.IdentifierPolicy()),
		service.WithExplain(cfg.Explain),
		service.WithRetention(cfg.CacheSettings().Retention),
		service.WithLogger(o.logger),
		service.WithMetricsRecorder(o.metricsRecorder),
	}
}
