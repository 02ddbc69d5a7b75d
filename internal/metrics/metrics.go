// Package metrics holds the prometheus collectors of the approval engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminflow_commands_total",
			Help: "Total number of processed approval commands",
		},
		[]string{"operation", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adminflow_command_duration_seconds",
			Help:    "Duration of approval commands",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	RiskScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adminflow_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"resource_type"},
	)

	RiskFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adminflow_risk_fallbacks_total",
			Help: "Total number of heuristic fallback risk scores",
		},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminflow_breaker_transitions_total",
			Help: "Circuit breaker state changes",
		},
		[]string{"category", "to"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminflow_outbox_published_total",
			Help: "Outbox messages by delivery outcome",
		},
		[]string{"outcome"},
	)

	OutboxLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adminflow_outbox_lag_seconds",
			Help:    "Delay between outbox write and delivery",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	AnalyticsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminflow_analytics_cache_total",
			Help: "Analytics cache lookups",
		},
		[]string{"result"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeValidation  = "validation"
	OutcomeTransition  = "invalid_transition"
	OutcomeConflict    = "conflict"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)
