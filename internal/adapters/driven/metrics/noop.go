package metrics

import (
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// NoopMetricsRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a new no-op metrics recorder.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

// RecordFetch is a no-op.
func (n *NoopMetricsRecorder) RecordFetch(domain.FetchMode, string, time.Duration) {}

// RecordCacheOutcome is a no-op.
func (n *NoopMetricsRecorder) RecordCacheOutcome(domain.CacheOutcome) {}

// RecordVerification is a no-op.
func (n *NoopMetricsRecorder) RecordVerification(domain.VerificationState) {}

// Ensure NoopMetricsRecorder implements ports.MetricsRecorder
var _ ports.MetricsRecorder = (*NoopMetricsRecorder)(nil)
