package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	fetchTotal        *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	cacheTotal        *prometheus.CounterVec
	verificationTotal *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics recorder
// with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	fetchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdqt_fetch_total",
		Help: "Total MDQ retrievals by mode and result",
	}, []string{"mode", "result"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mdqt_fetch_duration_seconds",
		Help:    "MDQ retrieval latency, including cache lookups",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	cacheTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdqt_cache_total",
		Help: "Cache participation in lookups by outcome",
	}, []string{"outcome"})

	verificationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mdqt_verification_total",
		Help: "Signature verification outcomes",
	}, []string{"state"})

	fetchTotal = register(reg, fetchTotal)
	fetchDuration = register(reg, fetchDuration)
	cacheTotal = register(reg, cacheTotal)
	verificationTotal = register(reg, verificationTotal)

	return &PrometheusMetricsRecorder{
		fetchTotal:        fetchTotal,
		fetchDuration:     fetchDuration,
		cacheTotal:        cacheTotal,
		verificationTotal: verificationTotal,
	}
}

// RecordFetch records a completed retrieval.
func (p *PrometheusMetricsRecorder) RecordFetch(mode domain.FetchMode, result string, duration time.Duration) {
	p.fetchTotal.WithLabelValues(mode.String(), result).Inc()
	p.fetchDuration.WithLabelValues(mode.String()).Observe(duration.Seconds())
}

// RecordCacheOutcome records how the cache took part in a lookup.
func (p *PrometheusMetricsRecorder) RecordCacheOutcome(outcome domain.CacheOutcome) {
	p.cacheTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordVerification records a verification outcome.
func (p *PrometheusMetricsRecorder) RecordVerification(state domain.VerificationState) {
	p.verificationTotal.WithLabelValues(string(state)).Inc()
}

// Ensure PrometheusMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*PrometheusMetricsRecorder)(nil)

// register adds c to reg, reusing an identical collector that is already
// registered so several handlers can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
