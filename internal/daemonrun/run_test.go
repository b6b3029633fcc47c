package daemonrun_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"groundstation/internal/daemon"
	"groundstation/internal/daemonrun"
	"groundstation/internal/testsupport"
	"groundstation/internal/worker"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBuildWiresWorkers(t *testing.T) {
	tests := []struct {
		name string
		opts []testsupport.ConfigOption
		want []string
	}{
		{name: "full", want: []string{"ingest", "persist", "render", "dashboard"}},
		{name: "no persistence", opts: []testsupport.ConfigOption{testsupport.WithoutPersistence()}, want: []string{"ingest", "render", "dashboard"}},
		{name: "ingest only", opts: []testsupport.ConfigOption{testsupport.WithoutPersistence(), testsupport.WithoutDashboard()}, want: []string{"ingest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, tt.opts...)
			if err := cfg.EnsureDirectories(); err != nil {
				t.Fatalf("EnsureDirectories: %v", err)
			}
			rt, err := daemonrun.Build(context.Background(), cfg, nil, "")
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			t.Cleanup(func() { _ = rt.Daemon.Close() })

			if rt.Session == "" {
				t.Fatal("expected generated session id")
			}
			members := rt.Daemon.Workers().Members()
			if len(members) != len(tt.want) {
				t.Fatalf("got %d workers, want %v", len(members), tt.want)
			}
			for i, name := range tt.want {
				if members[i].Name() != name {
					t.Fatalf("worker %d = %q, want %q", i, members[i].Name(), name)
				}
			}
			if (rt.Dashboard != nil) != cfg.Dashboard.Enabled {
				t.Fatalf("dashboard presence mismatch: %v", rt.Dashboard)
			}
		})
	}
}

func TestRuntimeEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	rt, err := daemonrun.Build(context.Background(), cfg, nil, "flight-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := rt.Daemon
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "simulated rows", func() bool { return d.Buffer().Pushed() >= 5 })
	waitFor(t, "persisted samples", func() bool {
		n, err := d.Store().Count(context.Background())
		return err == nil && n > 0
	})
	waitFor(t, "dashboard listener", func() bool { return rt.Dashboard.Addr() != "" })

	resp, err := http.Get("http://" + rt.Dashboard.Addr() + "/api/latest")
	if err != nil {
		t.Fatalf("GET /api/latest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var latest struct {
		Seq     uint64   `json:"seq"`
		Columns []string `json:"columns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.Seq == 0 || len(latest.Columns) != 3 {
		t.Fatalf("unexpected latest %+v", latest)
	}

	samples, err := d.Store().Recent(context.Background(), "flight-1", 1)
	if err != nil || len(samples) != 1 {
		t.Fatalf("Recent = %v, %v", samples, err)
	}
	if _, ok := samples[0].Fields["altitude"]; !ok {
		t.Fatalf("expected schema-named fields, got %v", samples[0].Fields)
	}

	d.Stop()
	for _, st := range d.Workers().Statuses() {
		if st.State != worker.StateStopped {
			t.Fatalf("worker %s state %s after stop", st.Name, st.State)
		}
	}
}

func TestRuntimeReplaySkipsBadRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithoutPersistence(),
		testsupport.WithoutDashboard(),
		testsupport.WithReplayLines("0,1,2", "garbage", "", "1,2", "2,3,4"),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	rt, err := daemonrun.Build(context.Background(), cfg, nil, "replay")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := rt.Daemon
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "replayed rows", func() bool { return d.Buffer().Pushed() == 2 })
	waitFor(t, "rejected records", func() bool {
		st := d.Workers().Statuses()[0]
		return st.Faults >= 2
	})

	rows := d.Buffer().Rows()
	if len(rows) != 2 || rows[0][0] != 0 || rows[1][0] != 2 {
		t.Fatalf("unexpected rows %v", rows)
	}
	if st := d.Workers().Statuses()[0]; st.State != worker.StateRunning {
		t.Fatalf("ingest should survive bad records, state %s", st.State)
	}
}

func TestRunLeavesRunningInstanceUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDashboard())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Unlock()
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "error"})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("pid file removed: %v", err)
	}
	if strings.TrimSpace(string(data)) != "4242" {
		t.Fatalf("pid file overwritten: %q", data)
	}
	if _, err := os.Stat(cfg.Persist.DatabasePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected store untouched while locked, stat err=%v", err)
	}
}

func TestRunWritesAndRemovesPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutDashboard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	want := strconv.Itoa(os.Getpid())
	waitFor(t, "pid file", func() bool {
		data, err := os.ReadFile(cfg.PIDPath())
		return err == nil && strings.TrimSpace(string(data)) == want
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("expected lock released after Run, got %v", err)
	}
	_ = lock.Unlock()
}
