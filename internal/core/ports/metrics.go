package ports

import (
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusMetricsRecorder for production,
// NoopMetricsRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordFetch records a completed retrieval. result is "ok" or an
	// error code string.
	RecordFetch(mode domain.FetchMode, result string, duration time.Duration)

	// RecordCacheOutcome records how the cache took part in a lookup.
	RecordCacheOutcome(outcome domain.CacheOutcome)

	// RecordVerification records a verification outcome.
	RecordVerification(state domain.VerificationState)
}
