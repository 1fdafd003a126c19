package mutation

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == k && pair.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if m.mutationsTotal == nil {
		t.Error("mutationsTotal is nil")
	}
	if m.idempotentReplays == nil {
		t.Error("idempotentReplays is nil")
	}
	if m.auditAppendFailures == nil {
		t.Error("auditAppendFailures is nil")
	}
	if m.evictions == nil {
		t.Error("evictions is nil")
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.RecordMutation("applied")
	m.RecordReplay()
	m.RecordAuditAppendFailure()
	m.RecordEvictions(1)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	want := map[string]bool{
		MetricMutationsTotal:       false,
		MetricIdempotentReplays:    false,
		MetricAuditAppendFailures:  false,
		MetricIdempotencyEvictions: false,
	}
	for _, mf := range metrics {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestMetrics_RecordMutation(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.RecordMutation("applied")
	m.RecordMutation("applied")
	m.RecordMutation("validation")

	if got := counterValue(t, reg, MetricMutationsTotal, map[string]string{"outcome": "applied"}); got != 2 {
		t.Errorf("applied count = %v, want 2", got)
	}
	if got := counterValue(t, reg, MetricMutationsTotal, map[string]string{"outcome": "validation"}); got != 1 {
		t.Errorf("validation count = %v, want 1", got)
	}
}

func TestMetrics_RecordEvictions(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.RecordEvictions(3)
	m.RecordEvictions(0)
	m.RecordEvictions(-1)

	if got := counterValue(t, reg, MetricIdempotencyEvictions, nil); got != 3 {
		t.Errorf("eviction count = %v, want 3", got)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// A pipeline configured without metrics must not panic
	m.RecordMutation("applied")
	m.RecordReplay()
	m.RecordAuditAppendFailure()
	m.RecordEvictions(1)
}
