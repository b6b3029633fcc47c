package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.RowIngested()
	m.RowIngested()
	if got := testutil.ToFloat64(m.rowsIngested); got != 2 {
		t.Fatalf("expected 2 ingested rows, got %f", got)
	}

	m.RowRejected(ReasonMalformed)
	m.RowRejected(ReasonSchema)
	m.RowRejected(ReasonSchema)
	if got := testutil.ToFloat64(m.rowsRejected.WithLabelValues(ReasonSchema)); got != 2 {
		t.Fatalf("expected 2 schema rejections, got %f", got)
	}

	m.WorkerFault(&worker.FaultError{Worker: "ingest", Iteration: 3, Err: errors.New("x")})
	if got := testutil.ToFloat64(m.workerFaults.WithLabelValues("ingest")); got != 1 {
		t.Fatalf("expected 1 ingest fault, got %f", got)
	}

	m.SamplePersisted(0.002)
	if got := testutil.ToFloat64(m.samplesPersisted); got != 1 {
		t.Fatalf("expected 1 persisted sample, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.persistLatency); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	m.FramePublished(2)
	if got := testutil.ToFloat64(m.framesDropped); got != 2 {
		t.Fatalf("expected 2 dropped frames, got %f", got)
	}
	m.StreamClients(4)
	if got := testutil.ToFloat64(m.streamClients); got != 4 {
		t.Fatalf("expected 4 stream clients, got %f", got)
	}
}

func TestBindBufferExportsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf, err := telemetry.NewBuffer(telemetry.MustColumnSchema("time", "alt"), 2)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := m.BindBuffer(buf); err != nil {
		t.Fatalf("BindBuffer: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := buf.Push(telemetry.Row{float64(i), 1}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}
	if values["groundstation_buffer_rows"] != 2 {
		t.Fatalf("expected buffer_rows 2, got %v", values["groundstation_buffer_rows"])
	}
	if values["groundstation_buffer_capacity_rows"] != 2 {
		t.Fatalf("expected capacity 2, got %v", values["groundstation_buffer_capacity_rows"])
	}
	if values["groundstation_buffer_pushes_total"] != 3 {
		t.Fatalf("expected 3 pushes, got %v", values["groundstation_buffer_pushes_total"])
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RowIngested()
	m.RowRejected(ReasonIO)
	m.WorkerFault(&worker.FaultError{Worker: "x"})
	m.SamplePersisted(1)
	m.PersistSkipped()
	m.FramePublished(1)
	m.StreamClients(1)
	m.DeviceSwitched()
	if err := m.BindBuffer(nil); err != nil {
		t.Fatalf("BindBuffer on nil: %v", err)
	}
}
