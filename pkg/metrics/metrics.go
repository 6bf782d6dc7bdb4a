package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Claim workflow metrics
	ClaimsSubmitted   prometheus.Counter
	ClaimConflicts    prometheus.Counter
	ClaimDecisions    *prometheus.CounterVec
	ClaimsReconciled  prometheus.Counter
	InvitationsIssued prometheus.Counter
	ContextSwitches   *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Platform snapshot, refreshed by the monitor
	EstablishmentsByStatus *prometheus.GaugeVec
	PendingClaims          prometheus.Gauge
	ActiveStaff            prometheus.Gauge
	ComponentUp            *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg leaves the
// collectors unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ClaimsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_submitted_total",
			Help:      "Total number of accepted establishment claims",
		}),
		ClaimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Claims rejected because the establishment was already claimed",
		}),
		ClaimDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_decisions_total",
			Help:      "Claim approvals and rejections",
		}, []string{"decision"}),
		ClaimsReconciled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_reconciled_total",
			Help:      "Orphaned pending establishments reset by the reconciliation sweep",
		}),
		InvitationsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_issued_total",
			Help:      "Total number of invitation tokens issued",
		}),
		ContextSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_switches_total",
			Help:      "Establishment context switches by result",
		}, []string{"result"}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		EstablishmentsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "establishments",
			Help:      "Establishments by claim status",
		}, []string{"claim_status"}),
		PendingClaims: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_claims",
			Help:      "Claims waiting for a super-admin decision",
		}),
		ActiveStaff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_staff_assignments",
			Help:      "Active staff assignments across all establishments",
		}),
		ComponentUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_up",
			Help:      "1 when the dependency answered the last health check",
		}, []string{"component"}),
	}
}
