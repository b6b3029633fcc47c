package preflight

import (
	"context"

	"groundstation/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results,
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	switch {
	case cfg.Serial.Simulate:
		results = append(results, Result{Name: "Telemetry source", Passed: true, Detail: "simulator"})
	case cfg.Serial.ReplayFile != "":
		results = append(results, CheckReplayFile(cfg.Serial.ReplayFile))
	default:
		results = append(results, CheckSerialDevices(cfg.SerialDevices()))
	}

	if cfg.Persist.Enabled {
		results = append(results, CheckDatabase(ctx, cfg.Persist.DatabasePath))
	}

	// A running daemon already holds the dashboard port.
	if cfg.Dashboard.Enabled && !ProbeDaemon(cfg).Running {
		results = append(results, CheckBindAddress(cfg.Dashboard.Bind))
	}

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
