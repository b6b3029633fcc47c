// Package metrics exposes the daemon's Prometheus instruments.
//
// All methods are safe on a nil *Metrics so workers can be built without a
// registry in tests and tools.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

const namespace = "groundstation"

// Rejection reasons used as the "reason" label on rejected rows.
const (
	ReasonEmpty     = "empty"
	ReasonMalformed = "malformed"
	ReasonSchema    = "schema_mismatch"
	ReasonIO        = "io"
)

// Metrics holds every collector the daemon registers.
type Metrics struct {
	rowsIngested     prometheus.Counter
	rowsRejected     *prometheus.CounterVec
	workerFaults     *prometheus.CounterVec
	samplesPersisted prometheus.Counter
	persistSkipped   prometheus.Counter
	persistLatency   prometheus.Histogram
	framesPublished  prometheus.Counter
	framesDropped    prometheus.Counter
	streamClients    prometheus.Gauge
	deviceSwitches   prometheus.Counter

	reg prometheus.Registerer
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("metrics: registerer is required")
	}
	m := &Metrics{
		reg: reg,
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Telemetry rows decoded and pushed into the buffer.",
		}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Serial records dropped before reaching the buffer, by reason.",
		}, []string{"reason"}),
		workerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_faults_total",
			Help:      "Unit failures and recovered panics, by worker.",
		}, []string{"worker"}),
		samplesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_persisted_total",
			Help:      "Rows written to the time-series store.",
		}),
		persistSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_cycles_skipped_total",
			Help:      "Persistence cycles with no new row to write.",
		}),
		persistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_write_seconds",
			Help:      "Latency of a single store write.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		framesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_frames_published_total",
			Help:      "Dashboard frames built and broadcast.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_frames_dropped_total",
			Help:      "Frames skipped for slow stream clients.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_stream_clients",
			Help:      "Connected dashboard stream clients.",
		}),
		deviceSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_device_switches_total",
			Help:      "Serial device changes triggered by hotplug events.",
		}),
	}

	collectors := []prometheus.Collector{
		m.rowsIngested, m.rowsRejected, m.workerFaults, m.samplesPersisted,
		m.persistSkipped, m.persistLatency, m.framesPublished, m.framesDropped,
		m.streamClients, m.deviceSwitches,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// BindBuffer exports the buffer's size, capacity, and push count as gauges
// read at scrape time.
func (m *Metrics) BindBuffer(buf *telemetry.Buffer) error {
	if m == nil || buf == nil {
		return nil
	}
	funcs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_rows",
			Help:      "Rows currently retained in the telemetry buffer.",
		}, func() float64 { return float64(buf.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_capacity_rows",
			Help:      "Fixed capacity of the telemetry buffer.",
		}, func() float64 { return float64(buf.Capacity()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_pushes_total",
			Help:      "Rows accepted by the buffer, including evicted ones.",
		}, func() float64 { return float64(buf.Pushed()) }),
	}
	for _, c := range funcs {
		if err := m.reg.Register(c); err != nil {
			return fmt.Errorf("register buffer metric: %w", err)
		}
	}
	return nil
}

// RowIngested counts one accepted row.
func (m *Metrics) RowIngested() {
	if m == nil {
		return
	}
	m.rowsIngested.Inc()
}

// RowRejected counts one dropped record.
func (m *Metrics) RowRejected(reason string) {
	if m == nil {
		return
	}
	m.rowsRejected.WithLabelValues(reason).Inc()
}

// WorkerFault counts a lifecycle fault. It matches worker.WithFaultHook.
func (m *Metrics) WorkerFault(f *worker.FaultError) {
	if m == nil || f == nil {
		return
	}
	m.workerFaults.WithLabelValues(f.Worker).Inc()
}

// SamplePersisted records one store write and its latency.
func (m *Metrics) SamplePersisted(seconds float64) {
	if m == nil {
		return
	}
	m.samplesPersisted.Inc()
	m.persistLatency.Observe(seconds)
}

// PersistSkipped counts a cycle with nothing new to write.
func (m *Metrics) PersistSkipped() {
	if m == nil {
		return
	}
	m.persistSkipped.Inc()
}

// FramePublished counts a broadcast frame and the clients it skipped.
func (m *Metrics) FramePublished(dropped int) {
	if m == nil {
		return
	}
	m.framesPublished.Inc()
	if dropped > 0 {
		m.framesDropped.Add(float64(dropped))
	}
}

// StreamClients sets the connected stream client gauge.
func (m *Metrics) StreamClients(n int) {
	if m == nil {
		return
	}
	m.streamClients.Set(float64(n))
}

// DeviceSwitched counts a hotplug-driven device change.
func (m *Metrics) DeviceSwitched() {
	if m == nil {
		return
	}
	m.deviceSwitches.Inc()
}
