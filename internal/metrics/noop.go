package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventRecorded is a no-op.
func (n *NoopRecorder) IncEventRecorded(verdict, action string) {}

// ObservePipelineDuration is a no-op.
func (n *NoopRecorder) ObservePipelineDuration(duration time.Duration) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited() {}

// IncQuotaRejected is a no-op.
func (n *NoopRecorder) IncQuotaRejected() {}

// IncAutoBlock is a no-op.
func (n *NoopRecorder) IncAutoBlock(reason string) {}

// IncTrialAbuseFlagged is a no-op.
func (n *NoopRecorder) IncTrialAbuseFlagged() {}

// IncReputationCacheHit is a no-op.
func (n *NoopRecorder) IncReputationCacheHit(provider string) {}

// IncReputationCacheMiss is a no-op.
func (n *NoopRecorder) IncReputationCacheMiss(provider string) {}

// IncReputationProviderError is a no-op.
func (n *NoopRecorder) IncReputationProviderError(provider string) {}
