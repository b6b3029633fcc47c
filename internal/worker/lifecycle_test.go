package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"groundstation/internal/logging"
	"groundstation/internal/worker"
)

// recordingHandler captures records so tests can count fault logs.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

func waitForState(t *testing.T, l *worker.Lifecycle, want worker.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker %s: state %s, want %s", l.Name(), l.State(), want)
}

// A looping worker whose unit fails on the 3rd of 5 iterations still runs all
// five and logs exactly one fault.
func TestLoopingWorkerContinuesAfterFault(t *testing.T) {
	handler := &recordingHandler{}
	var (
		lc    *worker.Lifecycle
		calls atomic.Int32
	)
	unit := worker.UnitFunc(func(ctx context.Context) error {
		n := calls.Add(1)
		if n == 5 {
			if err := lc.Stop(); err != nil {
				t.Errorf("Stop from unit: %v", err)
			}
		}
		if n == 3 {
			return errors.New("telemetry frame corrupt")
		}
		return nil
	})
	lc = worker.New("scenario", unit, worker.Looping, worker.WithLogger(slog.New(handler)))

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Join()

	if got := calls.Load(); got != 5 {
		t.Fatalf("expected 5 iterations, got %d", got)
	}
	if lc.Faults() != 1 {
		t.Fatalf("expected 1 fault, got %d", lc.Faults())
	}
	if n := handler.count(slog.LevelWarn, "worker fault"); n != 1 {
		t.Fatalf("expected exactly one fault log, got %d", n)
	}
	if lc.State() != worker.StateStopped {
		t.Fatalf("expected stopped, got %s", lc.State())
	}
	if lc.Err() != nil {
		t.Fatalf("log-and-continue worker should not record a terminal error, got %v", lc.Err())
	}
}

func TestLoopingWorkerFailFast(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("database unreachable")
	unit := worker.UnitFunc(func(context.Context) error {
		if calls.Add(1) == 2 {
			return boom
		}
		return nil
	})
	var hooked atomic.Int32
	lc := worker.New("persist", unit, worker.Looping,
		worker.WithFailFast(),
		worker.WithFaultHook(func(f *worker.FaultError) { hooked.Add(1) }),
	)
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Join()

	if calls.Load() != 2 {
		t.Fatalf("expected fail-fast after 2 iterations, got %d", calls.Load())
	}
	var fault *worker.FaultError
	if !errors.As(lc.Err(), &fault) {
		t.Fatalf("expected FaultError, got %v", lc.Err())
	}
	if fault.Worker != "persist" || fault.Iteration != 2 || !errors.Is(fault, boom) {
		t.Fatalf("unexpected fault %+v", fault)
	}
	if hooked.Load() != 1 {
		t.Fatalf("expected fault hook once, got %d", hooked.Load())
	}
}

func TestPanicIsRecoveredAsFault(t *testing.T) {
	var calls atomic.Int32
	var lc *worker.Lifecycle
	unit := worker.UnitFunc(func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("index out of range")
		case 3:
			_ = lc.Stop()
		}
		return nil
	})
	var faults []*worker.FaultError
	var mu sync.Mutex
	lc = worker.New("render", unit, worker.Looping, worker.WithFaultHook(func(f *worker.FaultError) {
		mu.Lock()
		faults = append(faults, f)
		mu.Unlock()
	}))
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Join()

	mu.Lock()
	defer mu.Unlock()
	if len(faults) != 1 || !faults[0].Panicked() || !errors.Is(faults[0], worker.ErrUnitPanic) {
		t.Fatalf("expected one panic fault, got %v", faults)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected loop to continue after panic, got %d calls", calls.Load())
	}
}

func TestSingleShotRunsOnceThenStops(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	lc := worker.New("dashboard", worker.UnitFunc(func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}), worker.SingleShot)

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !lc.IsRunning() {
		t.Fatalf("expected running while unit blocks, got %s", lc.State())
	}
	close(release)
	lc.Join()

	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
	if lc.State() != worker.StateStopped {
		t.Fatalf("expected stopped, got %s", lc.State())
	}
	if err := lc.Stop(); !errors.Is(err, worker.ErrNotRunning) {
		t.Fatalf("Stop after completion: expected ErrNotRunning, got %v", err)
	}
}

func TestSingleShotFailureRecordedInErr(t *testing.T) {
	boom := errors.New("bind: address already in use")
	lc := worker.New("http", worker.UnitFunc(func(context.Context) error { return boom }), worker.SingleShot)
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Join()
	if !errors.Is(lc.Err(), boom) {
		t.Fatalf("expected single-shot error recorded, got %v", lc.Err())
	}
}

func TestStopIsCooperative(t *testing.T) {
	entered := make(chan struct{}, 1)
	finish := make(chan struct{})
	var completed atomic.Int32
	lc := worker.New("ingest", worker.UnitFunc(func(ctx context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-finish // ignores ctx: simulates an uninterruptible read
		completed.Add(1)
		return nil
	}), worker.Looping)

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered
	if err := lc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if lc.State() != worker.StateStopping {
		t.Fatalf("expected stopping while iteration in flight, got %s", lc.State())
	}
	if err := lc.Stop(); !errors.Is(err, worker.ErrNotRunning) {
		t.Fatalf("second Stop: expected ErrNotRunning, got %v", err)
	}

	close(finish)
	lc.Join()
	if completed.Load() != 1 {
		t.Fatalf("in-flight iteration should complete exactly once, got %d", completed.Load())
	}
	if lc.State() != worker.StateStopped {
		t.Fatalf("expected stopped, got %s", lc.State())
	}
}

func TestStopCancelsUnitContext(t *testing.T) {
	lc := worker.New("reader", worker.UnitFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), worker.Looping)
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, lc, worker.StateRunning)
	if err := lc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	lc.Join()
	if lc.Faults() != 0 {
		t.Fatalf("cancellation on stop must not count as a fault, got %d", lc.Faults())
	}
}

func TestUnitSeesWorkerNameInContext(t *testing.T) {
	names := make(chan string, 1)
	lc := worker.New("persist", worker.UnitFunc(func(ctx context.Context) error {
		name, _ := logging.WorkerFromContext(ctx)
		names <- name
		return nil
	}), worker.SingleShot)
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lc.Join()
	if got := <-names; got != "persist" {
		t.Fatalf("expected worker name in context, got %q", got)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	lc := worker.New("idle", worker.UnitFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}), worker.Looping)

	if lc.State() != worker.StateIdle {
		t.Fatalf("expected idle, got %s", lc.State())
	}
	lc.Join() // never started: returns immediately
	if err := lc.Stop(); !errors.Is(err, worker.ErrNotRunning) {
		t.Fatalf("Stop on idle: expected ErrNotRunning, got %v", err)
	}

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := lc.Start(context.Background()); !errors.Is(err, worker.ErrInvalidTransition) {
		t.Fatalf("double Start: expected ErrInvalidTransition, got %v", err)
	}
	if err := lc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	lc.Join()

	// Restart from Stopped is allowed.
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := lc.Stop(); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
	lc.Join()
	if lc.State() != worker.StateStopped {
		t.Fatalf("expected stopped, got %s", lc.State())
	}
}

func TestIntervalWaitAbandonedOnStop(t *testing.T) {
	var calls atomic.Int32
	lc := worker.New("slow", worker.UnitFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), worker.Looping, worker.WithInterval(time.Hour))
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := lc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := lc.JoinContext(ctx); err != nil {
		t.Fatalf("JoinContext: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one iteration before the interval wait, got %d", calls.Load())
	}
}

func TestParentContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lc := worker.New("bounded", worker.UnitFunc(func(context.Context) error { return nil }), worker.Looping,
		worker.WithInterval(time.Millisecond))
	if err := lc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	lc.Join()
	if lc.State() != worker.StateStopped {
		t.Fatalf("expected stopped, got %s", lc.State())
	}
}
