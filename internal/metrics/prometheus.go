package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sentra"

// PrometheusRecorder implements Recorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	eventsRecorded   *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	rateLimited      prometheus.Counter
	quotaRejected    prometheus.Counter
	autoBlocks       *prometheus.CounterVec
	trialAbuseFlags  prometheus.Counter
	repCacheHits     *prometheus.CounterVec
	repCacheMisses   *prometheus.CounterVec
	repErrors        *prometheus.CounterVec
}

// NewPrometheus creates a PrometheusRecorder and registers its collectors
// with the given registerer.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		eventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Total visitor events recorded, by verdict and action.",
			},
			[]string{"verdict", "action"},
		),
		pipelineDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "End-to-end ingestion pipeline duration in seconds.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the IP rate limiter.",
			},
		),
		quotaRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_rejected_total",
				Help:      "Total requests rejected by the quota enforcer.",
			},
		),
		autoBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auto_blocks_total",
				Help:      "Total auto-block decisions, by trigger.",
			},
			[]string{"reason"},
		),
		trialAbuseFlags: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trial_abuse_flagged_total",
				Help:      "Total events flagged suspicious by the trial-abuse detector.",
			},
		),
		repCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reputation_cache_hits_total",
				Help:      "Reputation cache hits, by provider.",
			},
			[]string{"provider"},
		),
		repCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reputation_cache_misses_total",
				Help:      "Reputation cache misses, by provider.",
			},
			[]string{"provider"},
		),
		repErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reputation_provider_errors_total",
				Help:      "Reputation provider failures, by provider.",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(
		r.eventsRecorded,
		r.pipelineDuration,
		r.rateLimited,
		r.quotaRejected,
		r.autoBlocks,
		r.trialAbuseFlags,
		r.repCacheHits,
		r.repCacheMisses,
		r.repErrors,
	)

	return r
}

// IncEventRecorded increments the recorded-events counter.
func (r *PrometheusRecorder) IncEventRecorded(verdict, action string) {
	r.eventsRecorded.WithLabelValues(verdict, action).Inc()
}

// ObservePipelineDuration records one pipeline run's duration.
func (r *PrometheusRecorder) ObservePipelineDuration(duration time.Duration) {
	r.pipelineDuration.Observe(duration.Seconds())
}

// IncRateLimited increments the rate-limited counter.
func (r *PrometheusRecorder) IncRateLimited() {
	r.rateLimited.Inc()
}

// IncQuotaRejected increments the quota-rejected counter.
func (r *PrometheusRecorder) IncQuotaRejected() {
	r.quotaRejected.Inc()
}

// IncAutoBlock increments the auto-block counter for a trigger.
func (r *PrometheusRecorder) IncAutoBlock(reason string) {
	r.autoBlocks.WithLabelValues(reason).Inc()
}

// IncTrialAbuseFlagged increments the suspicious-flag counter.
func (r *PrometheusRecorder) IncTrialAbuseFlagged() {
	r.trialAbuseFlags.Inc()
}

// IncReputationCacheHit increments the cache-hit counter for a provider.
func (r *PrometheusRecorder) IncReputationCacheHit(provider string) {
	r.repCacheHits.WithLabelValues(provider).Inc()
}

// IncReputationCacheMiss increments the cache-miss counter for a provider.
func (r *PrometheusRecorder) IncReputationCacheMiss(provider string) {
	r.repCacheMisses.WithLabelValues(provider).Inc()
}

// IncReputationProviderError increments the provider-error counter.
func (r *PrometheusRecorder) IncReputationProviderError(provider string) {
	r.repErrors.WithLabelValues(provider).Inc()
}
