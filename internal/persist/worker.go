package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"groundstation/internal/logging"
	"groundstation/internal/metrics"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

// FieldMap names each value of row by its schema column.
func FieldMap(schema telemetry.ColumnSchema, row telemetry.Row) (map[string]float64, error) {
	if len(row) != schema.Len() {
		return nil, &telemetry.SchemaMismatchError{Got: len(row), Want: schema.Len()}
	}
	fields := make(map[string]float64, len(row))
	for i, v := range row {
		name, _ := schema.Name(i)
		fields[name] = v
	}
	return fields, nil
}

// WriteError wraps a failed store write with the sequence number it carried.
type WriteError struct {
	Seq uint64
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("persist row %d: %v", e.Seq, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Hint is picked up by the lifecycle's fault log.
func (e *WriteError) Hint() string {
	if isSQLiteBusy(e.Err) {
		return "another process holds the telemetry database; stop it or move persist.database_path"
	}
	return "check free space and permissions for persist.database_path"
}

// Writer is the subset of Store the worker needs.
type Writer interface {
	Write(ctx context.Context, sample Sample) error
	Ping(ctx context.Context) error
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker is the persistence unit: one latest-row write per iteration.
type Worker struct {
	buf         *telemetry.Buffer
	store       Writer
	session     string
	measurement string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu      sync.Mutex
	lastSeq uint64
	written uint64
	lastErr error
}

// NewWorker returns a persistence unit writing buf's latest row to store.
func NewWorker(buf *telemetry.Buffer, store Writer, session, measurement string, opts ...WorkerOption) (*Worker, error) {
	if buf == nil || store == nil {
		return nil, errors.New("persist worker requires a buffer and a store")
	}
	if session == "" || measurement == "" {
		return nil, errors.New("persist worker requires session and measurement")
	}
	w := &Worker{
		buf:         buf,
		store:       store,
		session:     session,
		measurement: measurement,
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run writes the latest row if it has not been written yet.
func (w *Worker) Run(ctx context.Context) error {
	entry, ok := w.buf.LatestEntry()
	w.mu.Lock()
	last := w.lastSeq
	w.mu.Unlock()
	if !ok || entry.Seq == last {
		w.metrics.PersistSkipped()
		return nil
	}

	fields, err := FieldMap(w.buf.Schema(), entry.Row)
	if err != nil {
		return &WriteError{Seq: entry.Seq, Err: err}
	}
	started := time.Now()
	err = w.store.Write(ctx, Sample{
		SessionID:   w.session,
		Measurement: w.measurement,
		Seq:         entry.Seq,
		RecordedAt:  w.now(),
		Fields:      fields,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		werr := &WriteError{Seq: entry.Seq, Err: err}
		w.mu.Lock()
		w.lastErr = werr
		w.mu.Unlock()
		return werr
	}
	w.metrics.SamplePersisted(time.Since(started).Seconds())

	w.mu.Lock()
	if entry.Seq > last+1 && last != 0 {
		w.logger.Debug("persist skipped intermediate rows",
			logging.Uint64("from_seq", last),
			logging.Uint64("to_seq", entry.Seq),
		)
	}
	w.lastSeq = entry.Seq
	w.written++
	w.lastErr = nil
	w.mu.Unlock()
	return nil
}

// Written returns how many rows this worker has stored.
func (w *Worker) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// LastSeq returns the sequence number of the last stored row.
func (w *Worker) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// HealthCheck reports store reachability and the last write error.
func (w *Worker) HealthCheck(ctx context.Context) worker.Health {
	const name = "persist"
	w.mu.Lock()
	lastErr := w.lastErr
	w.mu.Unlock()
	if lastErr != nil {
		return worker.Unhealthy(name, lastErr.Error())
	}
	if err := w.store.Ping(ctx); err != nil {
		return worker.Unhealthy(name, "store unreachable: "+err.Error())
	}
	return worker.Healthy(name)
}
