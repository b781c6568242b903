package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.VectorsInserted.Add(3)
	m.SearchesTotal.Inc()
	m.IndexSize.Set(42)
	m.RequestsTotal.WithLabelValues("insert", "ok").Inc()

	if got := testutil.ToFloat64(m.VectorsInserted); got != 3 {
		t.Errorf("VectorsInserted = %f, want 3", got)
	}
	if got := testutil.ToFloat64(m.SearchesTotal); got != 1 {
		t.Errorf("SearchesTotal = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.IndexSize); got != 42 {
		t.Errorf("IndexSize = %f, want 42", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two instances on separate registries must not collide.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.VectorsInserted.Inc()
	if got := testutil.ToFloat64(b.VectorsInserted); got != 0 {
		t.Errorf("registries leaked state: %f", got)
	}
}
