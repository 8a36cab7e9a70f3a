package prometheus

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordSchedulerPending(42, 3)
	exporter.RecordWorkerBusy("taskkit", 0, true)
	exporter.RecordSlabCount(5)
	exporter.RecordRemoteFreeDepth(2)

	if got := testutil.ToFloat64(exporter.schedulerPending.WithLabelValues("42")); got != 3 {
		t.Fatalf("scheduler pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(exporter.workerBusy.WithLabelValues("taskkit", "0")); got != 1 {
		t.Fatalf("worker busy = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.slabCount); got != 5 {
		t.Fatalf("slab count = %v, want 5", got)
	}
	if got := testutil.ToFloat64(exporter.remoteFreeDepth); got != 2 {
		t.Fatalf("remote free depth = %v, want 2", got)
	}

	exporter.RecordWorkerBusy("taskkit", 0, false)
	if got := testutil.ToFloat64(exporter.workerBusy.WithLabelValues("taskkit", "0")); got != 0 {
		t.Fatalf("worker busy after clearing = %v, want 0", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter(reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordSlabCount(1)
	second.RecordSlabCount(4)

	got := testutil.ToFloat64(first.slabCount)
	if got != 4 {
		t.Fatalf("shared slab gauge = %v, want 4 (both exporters should share the registry's collector)", got)
	}
}

func TestMetricsExporter_NilReceiverIsNoOp(t *testing.T) {
	var m *MetricsExporter
	m.RecordSchedulerPending(1, 1)
	m.RecordWorkerBusy("p", 0, true)
	m.RecordSlabCount(1)
	m.RecordRemoteFreeDepth(1)
}
