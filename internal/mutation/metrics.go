package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricMutationsTotal       = "asset_mutations_total"
	MetricIdempotentReplays    = "idempotent_replays_total"
	MetricAuditAppendFailures  = "audit_append_failures_total"
	MetricIdempotencyEvictions = "idempotency_evictions_total"
)

// Metrics contains Prometheus metrics for the mutation pipeline.
// All operations are thread-safe.
type Metrics struct {
	mutationsTotal      *prometheus.CounterVec
	idempotentReplays   prometheus.Counter
	auditAppendFailures prometheus.Counter
	evictions           prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMutationsTotal,
				Help: "Total number of asset mutation attempts by outcome",
			},
			[]string{"outcome"},
		),
		idempotentReplays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricIdempotentReplays,
				Help: "Total number of mutations served from the idempotency cache",
			},
		),
		auditAppendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricAuditAppendFailures,
				Help: "Total number of swallowed audit append failures",
			},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricIdempotencyEvictions,
				Help: "Total number of idempotency records evicted by sweeps",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.mutationsTotal,
		m.idempotentReplays,
		m.auditAppendFailures,
		m.evictions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordMutation increments the mutation counter for an outcome
// ("applied", "replayed", or an error kind).
func (m *Metrics) RecordMutation(outcome string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(outcome).Inc()
}

// RecordReplay increments the idempotent replay counter.
func (m *Metrics) RecordReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

// RecordAuditAppendFailure increments the audit failure counter.
func (m *Metrics) RecordAuditAppendFailure() {
	if m == nil {
		return
	}
	m.auditAppendFailures.Inc()
}

// RecordEvictions adds to the eviction counter.
func (m *Metrics) RecordEvictions(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}
