// Package metrics provides Prometheus metrics for the clinic core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	ValidationsTotal   prometheus.Counter
	ValidationsBlocked prometheus.Counter
	ViolationsByKind   *prometheus.CounterVec
	ClaimsWon          prometheus.Counter
	ClaimConflicts     prometheus.Counter
	ClaimTransients    prometheus.Counter
	ClaimDuration      prometheus.Histogram
	AuditEventsDropped prometheus.Gauge
	AuditOutboxPending prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		ValidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_validations_total",
			Help: "Total safety-gate passes",
		}),
		ValidationsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_validations_blocked_total",
			Help: "Safety-gate passes that blocked the order set",
		}),
		ViolationsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_violations_total",
			Help: "Rule violations by kind",
		}, []string{"kind"}),
		ClaimsWon: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_claims_won_total",
			Help: "Queue entries successfully converted to bills",
		}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_claim_conflicts_total",
			Help: "Claim attempts that lost to a concurrent winner",
		}),
		ClaimTransients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_claim_transient_failures_total",
			Help: "Retryable claim failures (serialization, deadlock, timeout)",
		}),
		ClaimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_claim_duration_seconds",
			Help:    "Claim arbitration duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		AuditEventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_events_dropped",
			Help: "Audit events lost to a full sink buffer",
		}),
		AuditOutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_outbox_pending",
			Help: "Unpublished audit outbox rows",
		}),
	}

	prometheus.MustRegister(
		m.ValidationsTotal,
		m.ValidationsBlocked,
		m.ViolationsByKind,
		m.ClaimsWon,
		m.ClaimConflicts,
		m.ClaimTransients,
		m.ClaimDuration,
		m.AuditEventsDropped,
		m.AuditOutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
