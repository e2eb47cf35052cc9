// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Ingestion pipeline metrics
	IncEventRecorded(verdict, action string)
	ObservePipelineDuration(duration time.Duration)

	// Policy decisions
	IncRateLimited()
	IncQuotaRejected()
	IncAutoBlock(reason string) // reason: "manual_block", "trial_abuse", "risk_threshold"
	IncTrialAbuseFlagged()

	// Reputation lookup metrics
	IncReputationCacheHit(provider string)  // provider: "ipinfo" or "abuse"
	IncReputationCacheMiss(provider string)
	IncReputationProviderError(provider string)
}
