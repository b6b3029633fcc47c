package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Telemetry describes the shared buffer: its column schema and row capacity.
type Telemetry struct {
	Columns  []string `toml:"columns"`
	Capacity int      `toml:"capacity"`
}

// Serial contains configuration for the flight computer link.
type Serial struct {
	Device            string   `toml:"device"`
	FallbackDevices   []string `toml:"fallback_devices"`
	Baud              int      `toml:"baud"`
	ReadTimeoutMillis int      `toml:"read_timeout_ms"`
	// ReplayFile feeds recorded lines instead of opening a serial device.
	ReplayFile string `toml:"replay_file"`
	// ReplayIntervalMillis paces replayed lines; 0 replays as fast as possible.
	ReplayIntervalMillis int `toml:"replay_interval_ms"`
	// Simulate generates a synthetic climb profile when no hardware is attached.
	Simulate bool `toml:"simulate"`
	// Hotplug follows udev tty add events and switches to the new device.
	Hotplug  bool   `toml:"hotplug"`
	VendorID string `toml:"vendor_id"`
}

// Persist contains configuration for the local time-series sink.
type Persist struct {
	Enabled        bool   `toml:"enabled"`
	DatabasePath   string `toml:"database_path"`
	Measurement    string `toml:"measurement"`
	IntervalMillis int    `toml:"interval_ms"`
}

// Dashboard contains configuration for the live HTTP dashboard.
type Dashboard struct {
	Enabled       bool   `toml:"enabled"`
	Bind          string `toml:"bind"`
	RefreshMillis int    `toml:"refresh_ms"`
	MaxClients    int    `toml:"max_clients"`
	// Token, when set, is required as a bearer token on /api and /metrics.
	Token string `toml:"token"`
}

// Workers contains the shared worker fault policy.
type Workers struct {
	FailFast           bool `toml:"fail_fast"`
	StopTimeoutSeconds int  `toml:"stop_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for groundstation.
//
// Configuration sections by subsystem:
//   - Paths: state (lock, socket, database) and log directories
//   - Telemetry: buffer schema and capacity
//   - Serial: device, baud, read timeout, replay and simulation sources
//   - Persist: SQLite sink settings
//   - Dashboard: HTTP bind address and refresh cadence
//   - Workers: fault policy
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Telemetry Telemetry `toml:"telemetry"`
	Serial    Serial    `toml:"serial"`
	Persist   Persist   `toml:"persist"`
	Dashboard Dashboard `toml:"dashboard"`
	Workers   Workers   `toml:"workers"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("groundstation.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Persist.Enabled {
		dirs = append(dirs, filepath.Dir(c.Persist.DatabasePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "groundstation.sock")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "groundstation.lock")
}

// PIDPath returns the file the running daemon writes its PID to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "groundstation.pid")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "groundstation.log")
}

// ReadTimeout is the bound on a single serial read.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMillis) * time.Millisecond
}

// ReplayInterval paces replayed lines.
func (c *Config) ReplayInterval() time.Duration {
	return time.Duration(c.Serial.ReplayIntervalMillis) * time.Millisecond
}

// PersistInterval is the delay between persistence cycles.
func (c *Config) PersistInterval() time.Duration {
	return time.Duration(c.Persist.IntervalMillis) * time.Millisecond
}

// RefreshInterval is the delay between dashboard frames.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Dashboard.RefreshMillis) * time.Millisecond
}

// StopTimeout bounds how long shutdown waits for workers to join.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Workers.StopTimeoutSeconds) * time.Second
}

// SerialDevices returns the primary device followed by its fallbacks, without duplicates.
func (c *Config) SerialDevices() []string {
	seen := make(map[string]struct{}, 1+len(c.Serial.FallbackDevices))
	out := make([]string, 0, 1+len(c.Serial.FallbackDevices))
	for _, dev := range append([]string{c.Serial.Device}, c.Serial.FallbackDevices...) {
		if dev == "" {
			continue
		}
		if _, ok := seen[dev]; ok {
			continue
		}
		seen[dev] = struct{}{}
		out = append(out, dev)
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
