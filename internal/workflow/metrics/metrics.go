package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow trigger engine.
type Metrics struct {
	// Trigger rule evaluations by entity type and outcome
	// (matched, no_match, config_error, eval_error)
	Evaluations *prometheus.CounterVec

	// Workflow executions started by entity type
	Started *prometheus.CounterVec

	// Starts suppressed by the idempotency guard
	Deduplicated prometheus.Counter

	// Approval decisions recorded by outcome (approved, rejected)
	Approvals *prometheus.CounterVec

	// Per-event dispatch latency
	HandleLatency prometheus.Histogram
}

// New creates a Metrics instance with all trigger engine metrics registered.
func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_trigger_rule_evaluations_total",
			Help: "Total trigger rule evaluations by entity type and outcome",
		}, []string{"entity_type", "outcome"}),

		Started: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_workflows_started_total",
			Help: "Total workflow executions started by entity type",
		}, []string{"entity_type"}),

		Deduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_workflow_starts_deduplicated_total",
			Help: "Total workflow starts suppressed because the event was already handled",
		}),

		Approvals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_workflow_approvals_total",
			Help: "Total approval decisions recorded by outcome",
		}, []string{"decision"}),

		HandleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "govern_workflow_handle_event_duration_seconds",
			Help:    "Duration of dispatching one entity-change event",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncEvaluation records one trigger rule evaluation outcome.
func (m *Metrics) IncEvaluation(entityType, outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(entityType, outcome).Inc()
	}
}

// IncStarted records a started workflow execution.
func (m *Metrics) IncStarted(entityType string) {
	if m != nil {
		m.Started.WithLabelValues(entityType).Inc()
	}
}

// IncDeduplicated records a suppressed duplicate start.
func (m *Metrics) IncDeduplicated() {
	if m != nil {
		m.Deduplicated.Inc()
	}
}

// IncApproval records an approval decision.
func (m *Metrics) IncApproval(decision string) {
	if m != nil {
		m.Approvals.WithLabelValues(decision).Inc()
	}
}

// ObserveHandleLatency records the duration of one event dispatch.
func (m *Metrics) ObserveHandleLatency(d time.Duration) {
	if m != nil {
		m.HandleLatency.Observe(d.Seconds())
	}
}
