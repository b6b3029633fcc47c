package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"groundstation/internal/logging"
)

// Mode selects how a lifecycle drives its unit.
type Mode int

const (
	// SingleShot runs the unit once and then stops.
	SingleShot Mode = iota
	// Looping runs the unit repeatedly until stopped.
	Looping
)

func (m Mode) String() string {
	switch m {
	case SingleShot:
		return "single-shot"
	case Looping:
		return "looping"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is a lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithFailFast stops the lifecycle on its first fault and records it in Err.
func WithFailFast() Option {
	return func(l *Lifecycle) { l.failFast = true }
}

// WithInterval waits d between looping iterations. The wait is abandoned on stop.
func WithInterval(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger used for lifecycle events and faults.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithFaultHook registers fn to be called after each fault is logged.
func WithFaultHook(fn func(*FaultError)) Option {
	return func(l *Lifecycle) { l.onFault = fn }
}

// Lifecycle drives a Unit through start, cooperative stop, and join.
type Lifecycle struct {
	name     string
	unit     Unit
	mode     Mode
	logger   *slog.Logger
	failFast bool
	interval time.Duration
	onFault  func(*FaultError)

	faults     atomic.Uint64
	iterations atomic.Uint64

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started time.Time
}

// New returns an idle lifecycle for unit.
func New(name string, unit Unit, mode Mode, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		name:   name,
		unit:   unit,
		mode:   mode,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logging.String(logging.FieldWorker, name))
	return l
}

// Name returns the worker name.
func (l *Lifecycle) Name() string { return l.name }

// Mode returns the run mode.
func (l *Lifecycle) Mode() Mode { return l.mode }

// Unit returns the wrapped unit.
func (l *Lifecycle) Unit() Unit { return l.unit }

// Start launches the unit on a new goroutine. It is valid from Idle or Stopped.
func (l *Lifecycle) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	if l.state == StateRunning || l.state == StateStopping {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: start %s while %s", ErrInvalidTransition, l.name, state)
	}
	runCtx, cancel := context.WithCancel(logging.WithWorker(ctx, l.name))
	done := make(chan struct{})
	l.state = StateRunning
	l.cancel = cancel
	l.done = done
	l.err = nil
	l.started = time.Now()
	l.iterations.Store(0)
	l.mu.Unlock()

	l.logger.Info("worker started", logging.String("mode", l.mode.String()))
	go l.run(runCtx, cancel, done)
	return nil
}

// Stop requests a cooperative stop and returns without waiting. The unit's
// context is canceled; an iteration already in flight runs to completion.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, l.name, l.state)
	}
	l.state = StateStopping
	l.cancel()
	return nil
}

// Join blocks until the lifecycle is Stopped. It returns immediately if the
// lifecycle was never started.
func (l *Lifecycle) Join() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// JoinContext is Join bounded by ctx.
func (l *Lifecycle) JoinContext(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("join %s: %w", l.name, ctx.Err())
	}
}

// IsRunning reports whether the lifecycle is Running.
func (l *Lifecycle) IsRunning() bool {
	return l.State() == StateRunning
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Faults returns the number of faults observed since construction.
func (l *Lifecycle) Faults() uint64 { return l.faults.Load() }

// Iterations returns the number of unit runs in the current or last run.
func (l *Lifecycle) Iterations() uint64 { return l.iterations.Load() }

// Err returns the fault that ended the last run: the first fault under
// fail-fast, or the single-shot unit's own failure.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Lifecycle) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	var final error
	defer func() {
		cancel()
		l.mu.Lock()
		l.state = StateStopped
		l.err = final
		l.mu.Unlock()
		close(done)
		attrs := []logging.Attr{
			logging.Uint64("iterations", l.iterations.Load()),
			logging.Uint64("faults", l.faults.Load()),
		}
		if final != nil {
			attrs = append(attrs, logging.Error(final))
		}
		l.logger.Info("worker stopped", logging.Args(attrs...)...)
	}()

	if l.mode == SingleShot {
		if fault := l.iterate(ctx); fault != nil {
			final = fault
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if fault := l.iterate(ctx); fault != nil && l.failFast {
			final = fault
			return
		}

		if l.interval > 0 {
			timer := time.NewTimer(l.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// iterate runs the unit once. A returned error has already been counted and logged.
func (l *Lifecycle) iterate(ctx context.Context) (fault *FaultError) {
	iteration := l.iterations.Add(1)
	defer func() {
		if r := recover(); r != nil {
			fault = l.recordFault(iteration, fmt.Errorf("%w: %v", ErrUnitPanic, r))
		}
	}()

	err := l.unit.Run(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Interrupted by Stop; not a fault.
		return nil
	}
	return l.recordFault(iteration, err)
}

func (l *Lifecycle) recordFault(iteration uint64, err error) *FaultError {
	fault := &FaultError{Worker: l.name, Iteration: iteration, Err: err}
	l.faults.Add(1)

	impact := "one iteration skipped; worker continues"
	if l.failFast || l.mode == SingleShot {
		impact = "worker stopped"
	}
	logging.WarnWithContext(l.logger, "worker fault", "worker_fault",
		logging.Uint64(logging.FieldIteration, iteration),
		logging.Bool("panic", fault.Panicked()),
		logging.Error(err),
		logging.String(logging.FieldImpact, impact),
		logging.String(logging.FieldErrorHint, faultHint(err)),
	)
	if l.onFault != nil {
		l.onFault(fault)
	}
	return fault
}

func faultHint(err error) string {
	var hinted interface{ Hint() string }
	if errors.As(err, &hinted) {
		if hint := hinted.Hint(); hint != "" {
			return hint
		}
	}
	if errors.Is(err, ErrUnitPanic) {
		return "unit panicked; inspect the worker implementation"
	}
	return "check the worker's data source"
}

// Status is a point-in-time view of a lifecycle.
type Status struct {
	Name       string
	Mode       Mode
	State      State
	Faults     uint64
	Iterations uint64
	Started    time.Time
	LastError  string
}

// Status returns a snapshot of the lifecycle's counters and state.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{
		Name:       l.name,
		Mode:       l.mode,
		State:      l.state,
		Faults:     l.faults.Load(),
		Iterations: l.iterations.Load(),
		Started:    l.started,
	}
	if l.err != nil {
		st.LastError = l.err.Error()
	}
	return st
}
