package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"groundstation/internal/config"
	"groundstation/internal/daemon"
	"groundstation/internal/ingest"
	"groundstation/internal/ipc"
	"groundstation/internal/logging"
	"groundstation/internal/metrics"
	"groundstation/internal/persist"
	"groundstation/internal/render"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

// Worker names as they appear in logs, status, and metrics.
const (
	IngestWorker    = "ingest"
	PersistWorker   = "persist"
	RenderWorker    = "render"
	DashboardWorker = "dashboard"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Runtime is a fully wired, not yet started daemon.
type Runtime struct {
	Daemon    *daemon.Daemon
	Dashboard *render.Server
	Registry  *prometheus.Registry
	Session   string
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	lock *flock.Flock
}

// WithLock hands an instance lock taken with daemon.AcquireLock to the daemon.
func WithLock(lock *flock.Flock) BuildOption {
	return func(o *buildOptions) { o.lock = lock }
}

// Build wires the buffer, workers, store, and dashboard described by cfg.
// Callers own the returned daemon and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, session string, opts ...BuildOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if session == "" {
		session = uuid.NewString()
	}

	schema, err := telemetry.NewColumnSchema(cfg.Telemetry.Columns...)
	if err != nil {
		return nil, fmt.Errorf("telemetry schema: %w", err)
	}
	buf, err := telemetry.NewBuffer(schema, cfg.Telemetry.Capacity)
	if err != nil {
		return nil, fmt.Errorf("telemetry buffer: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	if err := m.BindBuffer(buf); err != nil {
		return nil, err
	}

	lifecycleOpts := func(name string, extra ...worker.Option) []worker.Option {
		opts := []worker.Option{
			worker.WithLogger(logging.NewComponentLogger(logger, name)),
			worker.WithFaultHook(m.WorkerFault),
		}
		if cfg.Workers.FailFast {
			opts = append(opts, worker.WithFailFast())
		}
		return append(opts, extra...)
	}

	group := worker.NewGroup()
	ingestWorker := ingest.NewWorker(buf, newOpener(cfg, schema.Len()), cfg.Serial.Device,
		ingest.WithLogger(logging.NewComponentLogger(logger, IngestWorker)),
		ingest.WithMetrics(m),
	)
	group.Add(worker.New(IngestWorker, ingestWorker, worker.Looping, lifecycleOpts(IngestWorker)...))

	var store *persist.Store
	if cfg.Persist.Enabled {
		store, err = persist.Open(ctx, cfg.Persist.DatabasePath)
		if err != nil {
			return nil, err
		}
		persistWorker, err := persist.NewWorker(buf, store, session, cfg.Persist.Measurement,
			persist.WithLogger(logging.NewComponentLogger(logger, PersistWorker)),
			persist.WithMetrics(m),
		)
		if err != nil {
			store.Close()
			return nil, err
		}
		group.Add(worker.New(PersistWorker, persistWorker, worker.Looping,
			lifecycleOpts(PersistWorker, worker.WithInterval(cfg.PersistInterval()))...))
	}

	var dashboard *render.Server
	if cfg.Dashboard.Enabled {
		hub := render.NewHub(cfg.Dashboard.MaxClients, m, logging.NewComponentLogger(logger, "stream"))
		group.Add(worker.New(RenderWorker, render.NewWorker(buf, hub, m), worker.Looping,
			lifecycleOpts(RenderWorker, worker.WithInterval(cfg.RefreshInterval()))...))
		dashboard = render.NewServer(cfg.Dashboard.Bind, buf, hub,
			render.WithGatherer(reg),
			render.WithHealth(group.Health),
			render.WithToken(cfg.Dashboard.Token),
			render.WithServerLogger(logging.NewComponentLogger(logger, DashboardWorker)),
		)
		group.Add(worker.New(DashboardWorker, dashboard, worker.SingleShot, lifecycleOpts(DashboardWorker)...))
	}

	d, err := daemon.New(cfg, logger, daemon.Components{
		Session: session,
		Buffer:  buf,
		Workers: group,
		Store:   store,
		Ingest:  ingestWorker,
		Metrics: m,
		Lock:    bo.lock,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &Runtime{Daemon: d, Dashboard: dashboard, Registry: reg, Session: session}, nil
}

// newOpener picks the line source: simulator, replay file, or serial port.
func newOpener(cfg *config.Config, width int) ingest.Opener {
	switch {
	case cfg.Serial.Simulate:
		return ingest.SimulatorOpener(width, cfg.ReplayInterval())
	case cfg.Serial.ReplayFile != "":
		return ingest.ReplayOpener(cfg.Serial.ReplayFile, cfg.ReplayInterval())
	default:
		return ingest.SerialOpener(cfg.Serial.Baud, cfg.ReadTimeout(), cfg.Serial.FallbackDevices)
	}
}

// Run starts the groundstation daemon and blocks until cmdCtx is canceled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	baseLogger, err := logging.NewFromConfig(cfg, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	session := uuid.NewString()
	logger := logging.WithSessionID(baseLogger, session)

	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	rt, err := Build(signalCtx, cfg, logger, session, WithLock(lock))
	if err != nil {
		_ = lock.Unlock()
		logger.Error("build daemon", logging.Error(err))
		return err
	}
	d := rt.Daemon
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon close", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return err
		}
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, serial device access, and the dashboard bind address"),
			logging.String(logging.FieldImpact, "no telemetry will be collected"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("groundstation ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.SocketPath()),
		logging.Bool("persist", cfg.Persist.Enabled),
		logging.Bool("dashboard", cfg.Dashboard.Enabled),
		logging.String("columns", strings.Join(cfg.Telemetry.Columns, ",")),
	)

	<-signalCtx.Done()
	logger.Info("groundstation daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
