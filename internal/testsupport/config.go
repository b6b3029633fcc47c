package testsupport

import (
	"path/filepath"
	"testing"

	"groundstation/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It runs the simulator instead of a serial device, binds the dashboard to
// an ephemeral port, and disables hotplug.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Persist.DatabasePath = filepath.Join(base, "state", "telemetry.db")
	cfgVal.Serial.Simulate = true
	cfgVal.Serial.Hotplug = false
	cfgVal.Serial.ReplayIntervalMillis = 1
	cfgVal.Persist.IntervalMillis = 5
	cfgVal.Dashboard.Bind = "127.0.0.1:0"
	cfgVal.Dashboard.RefreshMillis = 5
	cfgVal.Workers.StopTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithReplayLines writes lines to a replay file and points the config at it.
func WithReplayLines(lines ...string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "replay.csv")
		WriteLines(b.t, path, lines...)
		b.cfg.Serial.Simulate = false
		b.cfg.Serial.ReplayFile = path
	}
}

// WithCapacity overrides the buffer capacity.
func WithCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telemetry.Capacity = n
	}
}

// WithColumns overrides the telemetry schema.
func WithColumns(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telemetry.Columns = append([]string(nil), names...)
	}
}

// WithoutPersistence disables the SQLite sink.
func WithoutPersistence() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Persist.Enabled = false
	}
}

// WithoutDashboard disables the HTTP dashboard.
func WithoutDashboard() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dashboard.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
