package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"groundstation/internal/config"
	"groundstation/internal/ingest"
	"groundstation/internal/logging"
	"groundstation/internal/metrics"
	"groundstation/internal/persist"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

// ErrAlreadyRunning is returned when the instance lock is held elsewhere.
var ErrAlreadyRunning = errors.New("another groundstation daemon instance is already running")

// AcquireLock takes the instance lock at path. It returns ErrAlreadyRunning
// when another process holds it.
func AcquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// Components are the pieces a Daemon coordinates. Buffer and Workers are
// required; the rest are optional. Lock, when set, is an instance lock
// already taken with AcquireLock; the daemon releases it on Close.
type Components struct {
	Session string
	Buffer  *telemetry.Buffer
	Workers *worker.Group
	Store   *persist.Store
	Ingest  *ingest.Worker
	Metrics *metrics.Metrics
	Lock    *flock.Flock
}

// Daemon coordinates the worker group and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	session string
	buf     *telemetry.Buffer
	workers *worker.Group
	store   *persist.Store
	ingest  *ingest.Worker
	metrics *metrics.Metrics
	monitor *netlinkMonitor

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	started time.Time
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	PID        int
	Session    string
	Started    time.Time
	LockPath   string
	SocketPath string
	DBPath     string
	Device     string
	Hotplug    bool
	Columns    []string
	Size       int
	Capacity   int
	Pushed     uint64
	Workers    []worker.Status
	Health     []worker.Health
}

// New constructs a daemon around already-built components.
func New(cfg *config.Config, logger *slog.Logger, c Components) (*Daemon, error) {
	if cfg == nil || c.Buffer == nil || c.Workers == nil {
		return nil, errors.New("daemon requires config, buffer, and worker group")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		session:  c.Session,
		buf:      c.Buffer,
		workers:  c.Workers,
		store:    c.Store,
		ingest:   c.Ingest,
		metrics:  c.Metrics,
		lockPath: cfg.LockPath(),
		lock:     c.Lock,
	}
	if d.lock == nil {
		d.lock = flock.New(cfg.LockPath())
	} else {
		d.lockPath = d.lock.Path()
	}
	if cfg.Serial.Hotplug && c.Ingest != nil && !cfg.Serial.Simulate && cfg.Serial.ReplayFile == "" {
		d.monitor = newNetlinkMonitor(cfg, logger, d.switchDevice)
	}
	return d, nil
}

// Start acquires the instance lock, starts every worker, and begins
// following serial hotplug events.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if !d.lock.Locked() {
		ok, err := d.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workers.StartAll(runCtx); err != nil {
		d.workers.StopAll()
		d.workers.JoinAll()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workers: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
	}

	d.cancel = cancel
	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("groundstation daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", len(d.workers.Members())),
	)
	return nil
}

// Stop asks every worker to stop, waits up to the configured stop timeout,
// and releases the instance lock. Workers still running after the timeout
// are reported and left to finish on their own.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()
	d.workers.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.StopTimeout())
	defer cancel()
	if err := d.workers.JoinAllContext(ctx); err != nil {
		logging.WarnWithContext(d.logger, "workers did not stop in time", "shutdown_timeout",
			logging.Error(err),
			logging.Duration("timeout", d.cfg.StopTimeout()),
			logging.String(logging.FieldImpact, "a worker is still finishing its current iteration"),
			logging.String(logging.FieldErrorHint, "raise workers.stop_timeout_seconds or check the serial read timeout"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("groundstation daemon stopped")
}

// Close stops the daemon and releases the store, the ingest source, and the
// instance lock.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.lock.Locked() {
		if err := d.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	if d.ingest != nil {
		if err := d.ingest.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ingest source: %w", err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Buffer returns the shared telemetry buffer.
func (d *Daemon) Buffer() *telemetry.Buffer { return d.buf }

// Store returns the persistence store, or nil when persistence is disabled.
func (d *Daemon) Store() *persist.Store { return d.store }

// Session returns the daemon session identifier.
func (d *Daemon) Session() string { return d.session }

// Workers returns the worker group.
func (d *Daemon) Workers() *worker.Group { return d.workers }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	st := Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		Session:    d.session,
		Started:    started,
		LockPath:   d.lockPath,
		SocketPath: d.cfg.SocketPath(),
		Hotplug:    d.monitor.Running(),
		Columns:    d.buf.Schema().Names(),
		Size:       d.buf.Size(),
		Capacity:   d.buf.Capacity(),
		Pushed:     d.buf.Pushed(),
		Workers:    d.workers.Statuses(),
		Health:     d.workers.Health(ctx),
	}
	if d.store != nil {
		st.DBPath = d.store.Path()
	}
	if d.ingest != nil {
		st.Device = d.ingest.Device()
	}
	return st
}

func (d *Daemon) switchDevice(device string) {
	if d.ingest == nil || device == d.ingest.Device() {
		return
	}
	d.ingest.SetDevice(device)
	d.metrics.DeviceSwitched()
	d.logger.Info("serial device switched by hotplug",
		logging.String(logging.FieldEventType, "serial_device_switched"),
		logging.String(logging.FieldDevice, device),
	)
}
