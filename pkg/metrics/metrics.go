package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ValidationRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_records_total",
			Help: "Total number of offer records processed by the validation rule set (count)",
		},
		[]string{"status"},
	)

	ValidationRuleFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_rule_failures_total",
			Help: "Total number of per-rule failures, including isolated rule execution errors",
		},
		[]string{"rule", "kind"},
	)

	ValidationProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_processing_duration_ms",
			Help:    "Validation duration per record in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	ValidationActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "validation_active_rules",
			Help: "Number of currently loaded validation rules (builtin plus CEL)",
		},
	)

	DedupRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_records_total",
			Help: "Total number of offer records marked by the deduplication rule set (count)",
		},
		[]string{"status", "scope"},
	)

	DedupSessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dedup_session_duration_ms",
			Help:    "Deduplication duration per evaluation session in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	EligibilityDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_decisions_total",
			Help: "Terminal eligibility decisions emitted per record",
		},
		[]string{"decision"},
	)

	ReplayGuardChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_guard_checks_total",
			Help: "Replay guard outcomes for incoming offer rows",
		},
		[]string{"status"},
	)

	ReplayGuardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replay_guard_duration_ms",
			Help:    "Replay guard check duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"status"},
	)

	ReplayGuardCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_guard_cache_size",
			Help: "Number of processed-row keys currently held by the replay guard",
		},
	)

	ReconciliationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_events_total",
			Help: "Live-book reconciliation events processed, by outcome",
		},
		[]string{"status"},
	)

	ReconciliationProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciliation_processing_duration_ms",
			Help:    "Reconciliation event handling duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	ReconciliationRecordsUpdated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_records_updated_total",
			Help: "Offer records mutated by reconciliation events, by resulting status",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_retry_attempts_total",
			Help: "Message processing retry attempts",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_dlq_messages_total",
			Help: "Messages routed to the dead-letter topic",
		},
		[]string{"service", "topic", "reason"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Times a configured fallback decision was taken on infrastructure errors",
		},
		[]string{"component", "action", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests passing through a circuit breaker",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Failed requests observed by a circuit breaker",
		},
		[]string{"name"},
	)

	RateLimitedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_rate_limited_requests_total",
			Help: "Ops API requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)
)

func RegisterOpsMetrics() {
	prometheus.MustRegister(RateLimitedRequestsTotal)
}

func RegisterEngineMetrics() {
	prometheus.MustRegister(
		ValidationRecordsTotal,
		ValidationRuleFailuresTotal,
		ValidationProcessingDuration,
		ValidationActiveRules,
		DedupRecordsTotal,
		DedupSessionDuration,
		EligibilityDecisionsTotal,
		ReplayGuardChecksTotal,
		ReplayGuardDuration,
		ReplayGuardCacheSize,
	)
}

func RegisterReconciliationMetrics() {
	prometheus.MustRegister(
		ReconciliationEventsTotal,
		ReconciliationProcessingDuration,
		ReconciliationRecordsUpdated,
		EligibilityDecisionsTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		RetryAttemptsTotal,
		DLQMessagesTotal,
		FallbackUsageTotal,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveValidationDuration(d time.Duration, status string) {
	ValidationProcessingDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveDedupSessionDuration(d time.Duration) {
	DedupSessionDuration.Observe(float64(d.Milliseconds()))
}

func ObserveReplayGuardDuration(d time.Duration, status string) {
	ReplayGuardDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveReconciliationDuration(d time.Duration, status string) {
	ReconciliationProcessingDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func SetValidationActiveRules(count int) {
	ValidationActiveRules.Set(float64(count))
}
