package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"groundstation/internal/logging"
	"groundstation/internal/metrics"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

const (
	defaultRetryDelay = time.Second
	drainedPoll       = 250 * time.Millisecond
)

// RecordError wraps the failure of a single record with the line that caused it.
type RecordError struct {
	Line string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %q: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Hint is picked up by the lifecycle's fault log.
func (e *RecordError) Hint() string {
	switch {
	case errors.Is(e.Err, telemetry.ErrSchemaMismatch):
		return "record width differs from telemetry.columns; check the flight computer sketch"
	case errors.Is(e.Err, ErrMalformed):
		return "non-numeric field; check baud rate and wiring"
	case errors.Is(e.Err, ErrLineTooLong):
		return "no newline received; check baud rate"
	default:
		return "check the serial link"
	}
}

// SourceError is an open or read failure on the line source.
type SourceError struct {
	Op     string
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Hint is picked up by the lifecycle's fault log.
func (e *SourceError) Hint() string {
	return "check that the flight computer is plugged in and the user can open the device"
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

// WithRetryDelay sets the pause after a failed open.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.retryDelay = d
		}
	}
}

// Worker is the producer unit: one line read, parsed, and pushed per iteration.
type Worker struct {
	buf        *telemetry.Buffer
	open       Opener
	logger     *slog.Logger
	metrics    *metrics.Metrics
	retryDelay time.Duration

	// src is only touched from Run.
	src     LineSource
	drained bool

	mu       sync.Mutex
	device   string
	switchTo bool
	lastErr  error
	lastRow  time.Time
}

// NewWorker returns an ingest unit pushing into buf from sources produced by open.
func NewWorker(buf *telemetry.Buffer, open Opener, device string, opts ...WorkerOption) *Worker {
	w := &Worker{
		buf:        buf,
		open:       open,
		device:     device,
		logger:     logging.NewNop(),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetDevice switches to path; the current source is closed at the start of
// the next iteration.
func (w *Worker) SetDevice(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if path == "" || (path == w.device && !w.switchTo) {
		return
	}
	w.device = path
	w.switchTo = true
}

// Device returns the device the worker reads from, or will switch to.
func (w *Worker) Device() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.device
}

// Run reads and pushes one record.
func (w *Worker) Run(ctx context.Context) error {
	src, err := w.source(ctx)
	if err != nil {
		w.setErr(err)
		w.metrics.RowRejected(metrics.ReasonIO)
		w.sleep(ctx, w.retryDelay)
		return err
	}
	if w.drained {
		w.sleep(ctx, drainedPoll)
		return nil
	}

	line, err := src.ReadLine(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrReadTimeout):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, io.EOF):
		w.drained = true
		w.logger.Info("telemetry source drained", logging.String("source", src.Name()))
		return nil
	case errors.Is(err, ErrLineTooLong):
		w.metrics.RowRejected(metrics.ReasonMalformed)
		return &RecordError{Err: err}
	default:
		w.closeSource()
		w.metrics.RowRejected(metrics.ReasonIO)
		serr := &SourceError{Op: "read", Source: src.Name(), Err: err}
		w.setErr(serr)
		return serr
	}

	row, err := ParseLine(line, w.buf.Schema().Len())
	if err != nil {
		if errors.Is(err, ErrEmptyLine) {
			w.metrics.RowRejected(metrics.ReasonEmpty)
			w.logger.Debug("skipping blank telemetry line")
			return nil
		}
		w.metrics.RowRejected(metrics.ReasonMalformed)
		return &RecordError{Line: line, Err: err}
	}
	if err := w.buf.Push(row); err != nil {
		w.metrics.RowRejected(metrics.ReasonSchema)
		return &RecordError{Line: line, Err: err}
	}
	w.metrics.RowIngested()
	w.mu.Lock()
	w.lastErr = nil
	w.lastRow = time.Now()
	w.mu.Unlock()
	return nil
}

// Close releases the current source. Call after the lifecycle has stopped.
func (w *Worker) Close() error {
	if w.src == nil {
		return nil
	}
	err := w.src.Close()
	w.src = nil
	return err
}

// HealthCheck reports whether records are flowing.
func (w *Worker) HealthCheck(context.Context) worker.Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	const name = "ingest"
	if w.lastErr != nil {
		return worker.Unhealthy(name, w.lastErr.Error())
	}
	if w.lastRow.IsZero() {
		return worker.Unhealthy(name, "no telemetry received yet")
	}
	return worker.Health{Name: name, Ready: true, Detail: "last row " + time.Since(w.lastRow).Round(time.Millisecond).String() + " ago"}
}

func (w *Worker) source(ctx context.Context) (LineSource, error) {
	w.mu.Lock()
	device := w.device
	switching := w.switchTo
	w.switchTo = false
	w.mu.Unlock()

	if switching && w.src != nil {
		w.logger.Info("switching serial device",
			logging.String("from", w.src.Name()),
			logging.String(logging.FieldDevice, device),
		)
		w.closeSource()
	}
	if w.src != nil {
		return w.src, nil
	}

	src, err := w.open(ctx, device)
	if err != nil {
		name := device
		if name == "" {
			name = "source"
		}
		return nil, &SourceError{Op: "open", Source: name, Err: err}
	}
	w.src = src
	w.drained = false
	w.logger.Info("telemetry source opened", logging.String("source", src.Name()))
	return src, nil
}

func (w *Worker) closeSource() {
	if w.src == nil {
		return
	}
	if err := w.src.Close(); err != nil {
		w.logger.Debug("close telemetry source", logging.Error(err))
	}
	w.src = nil
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
