// Package metrics exposes Prometheus collectors for the validation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_validations_total",
			Help: "Total number of key validations by outcome",
		},
		[]string{"outcome"},
	)

	validationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyward_validation_duration_seconds",
			Help:    "Time spent deciding a key validation",
			Buckets: prometheus.DefBuckets,
		},
	)

	ledgerAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyward_ledger_append_failures_total",
			Help: "Usage events that could not be written to the ledger",
		},
	)

	sweptCounters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyward_ratelimit_swept_total",
			Help: "Expired rate limit counters removed by the sweeper",
		},
	)
)

// ObserveValidation records one validation decision and how long it took.
func ObserveValidation(outcome string, d time.Duration) {
	validationsTotal.WithLabelValues(outcome).Inc()
	validationDuration.Observe(d.Seconds())
}

// LedgerAppendFailed counts a usage event that was dropped.
func LedgerAppendFailed() {
	ledgerAppendFailures.Inc()
}

// CountersSwept adds n to the swept counter total.
func CountersSwept(n int) {
	sweptCounters.Add(float64(n))
}

// RegisterGauges exposes the live size of the limiter and session store.
func RegisterGauges(trackedIdentities, activeSessions func() int) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "keyward_ratelimit_tracked_identities",
			Help: "Number of identities with a live rate limit counter",
		}, func() float64 {
			return float64(trackedIdentities())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "keyward_admin_sessions",
			Help: "Number of live admin sessions",
		}, func() float64 {
			return float64(activeSessions())
		}),
	)
}
