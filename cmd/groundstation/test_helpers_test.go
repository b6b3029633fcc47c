package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"groundstation/internal/config"
	"groundstation/internal/daemon"
	"groundstation/internal/daemonrun"
	"groundstation/internal/ipc"
	"groundstation/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	session    string
	socketPath string
	configPath string
}

// setupCLITestEnv runs a daemon replaying three rows behind a live IPC socket.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithoutDashboard(),
		testsupport.WithReplayLines("0,10,1", "1,20,2", "2,30,3"),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := writeTestConfig(t, cfg)

	rt, err := daemonrun.Build(context.Background(), cfg, nil, "cli-session")
	if err != nil {
		t.Fatalf("daemonrun.Build: %v", err)
	}
	d := rt.Daemon
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, nil)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	waitFor(t, 5*time.Second, func() bool { return d.Buffer().Pushed() == 3 })
	waitFor(t, 5*time.Second, func() bool {
		n, err := d.Store().Count(context.Background())
		return err == nil && n > 0
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		session:    rt.Session,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	home := filepath.Join(testsupport.BaseDir(cfg), "home")
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".config", "groundstation", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
