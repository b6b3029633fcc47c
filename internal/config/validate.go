package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if err := c.validateSerial(); err != nil {
		return err
	}
	if err := c.validatePersist(); err != nil {
		return err
	}
	if err := c.validateDashboard(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTelemetry() error {
	if len(c.Telemetry.Columns) == 0 {
		return errors.New("telemetry.columns must list at least one column")
	}
	seen := make(map[string]int, len(c.Telemetry.Columns))
	for i, name := range c.Telemetry.Columns {
		if name == "" {
			return fmt.Errorf("telemetry.columns[%d] must not be empty", i)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("telemetry.columns: %q appears at %d and %d", name, prev, i)
		}
		seen[name] = i
	}
	if c.Telemetry.Capacity <= 0 {
		return errors.New("telemetry.capacity must be positive")
	}
	return nil
}

func (c *Config) validateSerial() error {
	if c.Serial.Simulate && c.Serial.ReplayFile != "" {
		return errors.New("serial.simulate and serial.replay_file are mutually exclusive")
	}
	if c.Serial.Simulate || c.Serial.ReplayFile != "" {
		if c.Serial.ReplayIntervalMillis < 0 {
			return errors.New("serial.replay_interval_ms must be non-negative")
		}
		return nil
	}
	if c.Serial.Device == "" && len(c.Serial.FallbackDevices) == 0 {
		return fmt.Errorf("serial.device must be set (or export %s)", serialDeviceEnv)
	}
	if c.Serial.Baud <= 0 {
		return errors.New("serial.baud must be positive")
	}
	if c.Serial.ReadTimeoutMillis < minReadTimeoutMillis || c.Serial.ReadTimeoutMillis > maxReadTimeoutMillis {
		return fmt.Errorf("serial.read_timeout_ms must be between %d and %d", minReadTimeoutMillis, maxReadTimeoutMillis)
	}
	return nil
}

func (c *Config) validatePersist() error {
	if !c.Persist.Enabled {
		return nil
	}
	if c.Persist.IntervalMillis <= 0 {
		return errors.New("persist.interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateDashboard() error {
	if !c.Dashboard.Enabled {
		return nil
	}
	if c.Dashboard.RefreshMillis <= 0 {
		return errors.New("dashboard.refresh_ms must be positive")
	}
	if c.Dashboard.MaxClients < 0 {
		return errors.New("dashboard.max_clients must be non-negative")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.StopTimeoutSeconds <= 0 {
		return errors.New("workers.stop_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
