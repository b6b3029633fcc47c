package config

const (
	defaultConfigPath          = "~/.config/groundstation/config.toml"
	defaultStateDir            = "~/.local/share/groundstation"
	defaultLogDir              = "~/.local/share/groundstation/logs"
	defaultDatabasePath        = "~/.local/share/groundstation/telemetry.db"
	defaultCapacity            = 1000
	defaultSerialDevice        = "/dev/ttyACM0"
	defaultSerialFallback      = "/dev/ttyACM1"
	defaultBaud                = 115200
	defaultReadTimeoutMillis   = 500
	defaultMeasurement         = "flight"
	defaultPersistMillis       = 100
	defaultDashboardBind       = "127.0.0.1:8050"
	defaultRefreshMillis       = 100
	defaultMaxClients          = 32
	defaultStopTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	serialDeviceEnv            = "GROUNDSTATION_SERIAL_DEVICE"
	maxReadTimeoutMillis       = 25500 // VTIME is a byte of deciseconds
	minReadTimeoutMillis       = 100
	defaultReplayIntervalMilli = 10
)

var defaultColumns = []string{"time", "altitude", "velocity"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	columns := make([]string, len(defaultColumns))
	copy(columns, defaultColumns)
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Telemetry: Telemetry{
			Columns:  columns,
			Capacity: defaultCapacity,
		},
		Serial: Serial{
			Device:               defaultSerialDevice,
			FallbackDevices:      []string{defaultSerialFallback},
			Baud:                 defaultBaud,
			ReadTimeoutMillis:    defaultReadTimeoutMillis,
			ReplayIntervalMillis: defaultReplayIntervalMilli,
			Hotplug:              true,
		},
		Persist: Persist{
			Enabled:        true,
			DatabasePath:   defaultDatabasePath,
			Measurement:    defaultMeasurement,
			IntervalMillis: defaultPersistMillis,
		},
		Dashboard: Dashboard{
			Enabled:       true,
			Bind:          defaultDashboardBind,
			RefreshMillis: defaultRefreshMillis,
			MaxClients:    defaultMaxClients,
		},
		Workers: Workers{
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
