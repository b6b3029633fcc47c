package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelemetry()
	if err := c.normalizeSerial(); err != nil {
		return err
	}
	if err := c.normalizePersist(); err != nil {
		return err
	}
	c.normalizeDashboard()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelemetry() {
	cleaned := make([]string, 0, len(c.Telemetry.Columns))
	for _, name := range c.Telemetry.Columns {
		cleaned = append(cleaned, strings.TrimSpace(name))
	}
	c.Telemetry.Columns = cleaned
}

func (c *Config) normalizeSerial() error {
	if value, ok := os.LookupEnv(serialDeviceEnv); ok && strings.TrimSpace(value) != "" {
		c.Serial.Device = strings.TrimSpace(value)
	}
	c.Serial.Device = strings.TrimSpace(c.Serial.Device)
	fallbacks := c.Serial.FallbackDevices[:0]
	for _, dev := range c.Serial.FallbackDevices {
		if trimmed := strings.TrimSpace(dev); trimmed != "" {
			fallbacks = append(fallbacks, trimmed)
		}
	}
	c.Serial.FallbackDevices = fallbacks
	if c.Serial.ReadTimeoutMillis == 0 {
		c.Serial.ReadTimeoutMillis = defaultReadTimeoutMillis
	}
	c.Serial.VendorID = strings.ToLower(strings.TrimSpace(c.Serial.VendorID))
	if strings.TrimSpace(c.Serial.ReplayFile) != "" {
		var err error
		if c.Serial.ReplayFile, err = expandPath(strings.TrimSpace(c.Serial.ReplayFile)); err != nil {
			return fmt.Errorf("serial.replay_file: %w", err)
		}
	} else {
		c.Serial.ReplayFile = ""
	}
	return nil
}

func (c *Config) normalizePersist() error {
	if strings.TrimSpace(c.Persist.DatabasePath) == "" {
		c.Persist.DatabasePath = defaultDatabasePath
	}
	var err error
	if c.Persist.DatabasePath, err = expandPath(c.Persist.DatabasePath); err != nil {
		return fmt.Errorf("persist.database_path: %w", err)
	}
	c.Persist.Measurement = strings.TrimSpace(c.Persist.Measurement)
	if c.Persist.Measurement == "" {
		c.Persist.Measurement = defaultMeasurement
	}
	return nil
}

func (c *Config) normalizeDashboard() {
	c.Dashboard.Bind = strings.TrimSpace(c.Dashboard.Bind)
	c.Dashboard.Token = strings.TrimSpace(c.Dashboard.Token)
	if c.Dashboard.Bind == "" {
		c.Dashboard.Bind = defaultDashboardBind
	}
	if c.Dashboard.MaxClients == 0 {
		c.Dashboard.MaxClients = defaultMaxClients
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
