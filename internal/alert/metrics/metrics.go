package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the alert engine.
type Metrics struct {
	// Rule evaluations by entity type and outcome
	// (matched, no_match, config_error, eval_error)
	Evaluations *prometheus.CounterVec

	// Alerts created by severity
	AlertsCreated *prometheus.CounterVec

	// Deduplicated triggers (existing ACTIVE alert found or conflict on save)
	Deduplicated prometheus.Counter

	// Alerts flipped to RESOLVED by auto-resolution
	AutoResolved prometheus.Counter

	// Terminal alerts removed by retention cleanup
	Purged prometheus.Counter

	// Per-entity evaluation latency
	EvaluateLatency prometheus.Histogram
}

// New creates a Metrics instance with all alert engine metrics registered.
func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_alert_rule_evaluations_total",
			Help: "Total alerting rule evaluations by entity type and outcome",
		}, []string{"entity_type", "outcome"}),

		AlertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "govern_alerts_created_total",
			Help: "Total alerts created by severity",
		}, []string{"severity"}),

		Deduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_alerts_deduplicated_total",
			Help: "Total rule triggers suppressed because an ACTIVE alert already existed",
		}),

		AutoResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_alerts_auto_resolved_total",
			Help: "Total alerts transitioned from ACTIVE to RESOLVED by auto-resolution",
		}),

		Purged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "govern_alerts_purged_total",
			Help: "Total terminal-state alerts deleted by retention cleanup",
		}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "govern_alert_evaluate_duration_seconds",
			Help:    "Duration of evaluating one entity against its active rule set",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncEvaluation records one rule evaluation outcome.
func (m *Metrics) IncEvaluation(entityType, outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(entityType, outcome).Inc()
	}
}

// IncAlertCreated records a created alert.
func (m *Metrics) IncAlertCreated(severity string) {
	if m != nil {
		m.AlertsCreated.WithLabelValues(severity).Inc()
	}
}

// IncDeduplicated records a suppressed duplicate trigger.
func (m *Metrics) IncDeduplicated() {
	if m != nil {
		m.Deduplicated.Inc()
	}
}

// AddAutoResolved records auto-resolved alerts.
func (m *Metrics) AddAutoResolved(n int) {
	if m != nil {
		m.AutoResolved.Add(float64(n))
	}
}

// AddPurged records cleaned-up alerts.
func (m *Metrics) AddPurged(n int) {
	if m != nil {
		m.Purged.Add(float64(n))
	}
}

// ObserveEvaluateLatency records the duration of one entity evaluation.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
