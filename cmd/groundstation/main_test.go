package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"groundstation/internal/ipc"
	"groundstation/internal/testsupport"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "cli-session")
	requireContains(t, out, "3/")
	requireContains(t, out, "Rows pushed")
	requireContains(t, out, "ingest")
	requireContains(t, out, "persist")
	requireContains(t, out, "Running")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var resp ipc.StatusResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !resp.Running || resp.Pushed != 3 || resp.DBPath == "" {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestStatusCommandDaemonOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDashboard())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)
	socket := filepath.Join(t.TempDir(), "missing.sock")

	out, _, err := runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "stopped")
	requireContains(t, out, "not found")
}

func TestLatestCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"latest"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	requireContains(t, out, "Row 3")
	requireContains(t, out, "altitude")
	requireContains(t, out, "30")

	out, _, err = runCLI(t, []string{"latest", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("latest --json: %v", err)
	}
	var resp ipc.LatestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if !resp.Available || len(resp.Row) != 3 || resp.Row[1] != 30 {
		t.Fatalf("unexpected latest %+v", resp)
	}
}

func TestSnapshotCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want []float64
	}{
		{name: "by name", args: []string{"snapshot", "altitude", "--json"}, want: []float64{10, 20, 30}},
		{name: "by index", args: []string{"snapshot", "2", "--json"}, want: []float64{1, 2, 3}},
		{name: "tail", args: []string{"snapshot", "altitude", "--json", "--tail", "2"}, want: []float64{20, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runCLI(t, tt.args, env.socketPath, env.configPath)
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			var resp struct {
				Values []float64 `json:"values"`
			}
			if err := json.Unmarshal([]byte(out), &resp); err != nil {
				t.Fatalf("decode snapshot: %v", err)
			}
			if len(resp.Values) != len(tt.want) {
				t.Fatalf("values = %v, want %v", resp.Values, tt.want)
			}
			for i := range tt.want {
				if resp.Values[i] != tt.want[i] {
					t.Fatalf("values = %v, want %v", resp.Values, tt.want)
				}
			}
		})
	}

	out, _, err := runCLI(t, []string{"snapshot", "time"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("snapshot table: %v", err)
	}
	requireContains(t, out, "Time")

	if _, _, err := runCLI(t, []string{"snapshot", "pressure"}, env.socketPath, env.configPath); err == nil || !strings.Contains(err.Error(), "unknown column") {
		t.Fatalf("expected unknown column error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"snapshot", "7"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var resp ipc.HistoryResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if !resp.Enabled || len(resp.Samples) == 0 || resp.Samples[0].Session != env.session {
		t.Fatalf("unexpected history %+v", resp)
	}

	out, _, err = runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history table: %v", err)
	}
	requireContains(t, out, "Showing")
	requireContains(t, out, "Altitude")

	out, _, err = runCLI(t, []string{"history", "--sessions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history --sessions: %v", err)
	}
	requireContains(t, out, env.session)
	requireContains(t, out, "flight")
}

func TestCheckCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithReplayLines("0,1,2"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"check"}, "", configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Replay file")
	requireContains(t, out, "All checks passed")

	if err := os.Remove(cfg.Serial.ReplayFile); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"check"}, "", configPath)
	if err == nil {
		t.Fatalf("expected failed check, got:\n%s", out)
	}
	requireContains(t, out, "[ERROR]")
}

func TestCommandsWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDashboard())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"latest"}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "groundstation run") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestSnapshotRequest(t *testing.T) {
	tests := []struct {
		arg     string
		want    ipc.SnapshotRequest
		wantErr bool
	}{
		{arg: "altitude", want: ipc.SnapshotRequest{Name: "altitude"}},
		{arg: " 2 ", want: ipc.SnapshotRequest{Index: 2}},
		{arg: "-1", wantErr: true},
		{arg: " ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := snapshotRequest(tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("snapshotRequest(%q): expected error", tt.arg)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("snapshotRequest(%q) = %+v, %v; want %+v", tt.arg, got, err, tt.want)
		}
	}
}

func TestApplyRunOverrides(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	replay := filepath.Join(testsupport.BaseDir(cfg), "flight.csv")
	testsupport.WriteLines(t, replay, "0,1,2")

	if err := applyRunOverrides(cfg, false, replay, "/dev/ttyUSB3"); err != nil {
		t.Fatalf("applyRunOverrides: %v", err)
	}
	if cfg.Serial.Simulate || cfg.Serial.ReplayFile != replay || cfg.Serial.Device != "/dev/ttyUSB3" {
		t.Fatalf("unexpected serial config %+v", cfg.Serial)
	}

	if err := applyRunOverrides(cfg, true, "", ""); err != nil {
		t.Fatalf("applyRunOverrides: %v", err)
	}
	if !cfg.Serial.Simulate || cfg.Serial.ReplayFile != "" {
		t.Fatalf("expected simulator, got %+v", cfg.Serial)
	}
}
