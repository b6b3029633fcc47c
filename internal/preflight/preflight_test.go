package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"groundstation/internal/persist"
	"groundstation/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSerialDevices(t *testing.T) {
	regular := filepath.Join(t.TempDir(), "ttyFAKE")
	if err := os.WriteFile(regular, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		devices []string
		pass    bool
		detail  string
	}{
		{name: "none configured", devices: nil, detail: "no device configured"},
		{name: "missing", devices: []string{"/dev/ttyACM-missing"}, detail: "not present"},
		{name: "regular file", devices: []string{regular}, detail: "not a character device"},
		{name: "fallback passes", devices: []string{"/dev/ttyACM-missing", "/dev/null"}, pass: true, detail: "/dev/null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckSerialDevices(tt.devices)
			if result.Passed != tt.pass {
				t.Fatalf("passed = %v, detail %q", result.Passed, result.Detail)
			}
			if !strings.Contains(result.Detail, tt.detail) {
				t.Fatalf("detail %q missing %q", result.Detail, tt.detail)
			}
		})
	}
}

func TestCheckReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")
	testsupport.WriteLines(t, path, "0,1,2")
	if result := CheckReplayFile(path); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckReplayFile(filepath.Join(t.TempDir(), "missing.csv")); result.Passed {
		t.Fatal("expected failure for missing replay file")
	}
	if result := CheckReplayFile(t.TempDir()); result.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestCheckDatabase(t *testing.T) {
	t.Run("missing file in writable dir", func(t *testing.T) {
		result := CheckDatabase(context.Background(), filepath.Join(t.TempDir(), "telemetry.db"))
		if !result.Passed || !strings.Contains(result.Detail, "will be created") {
			t.Fatalf("unexpected result %+v", result)
		}
	})

	t.Run("existing store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "telemetry.db")
		store, err := persist.Open(context.Background(), path)
		if err != nil {
			t.Fatalf("persist.Open: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		result := CheckDatabase(context.Background(), path)
		if !result.Passed || !strings.Contains(result.Detail, "0 samples") {
			t.Fatalf("unexpected result %+v", result)
		}
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "telemetry.db")
		if err := os.WriteFile(path, []byte("definitely not sqlite"), 0o644); err != nil {
			t.Fatal(err)
		}
		if result := CheckDatabase(context.Background(), path); result.Passed {
			t.Fatalf("expected failure, got %+v", result)
		}
	})
}

func TestCheckBindAddress(t *testing.T) {
	if result := CheckBindAddress("127.0.0.1:0"); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	if result := CheckBindAddress(busy.Addr().String()); result.Passed {
		t.Fatal("expected failure for an address in use")
	}
}

func TestRunAllSimulator(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	want := "State directory,Log directory,Telemetry source,Sample database,Dashboard bind"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("checks = %s, want %s", got, want)
	}
	if Failed(results) {
		t.Fatalf("expected all checks to pass: %+v", results)
	}
}

func TestProbeDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	if probe := ProbeDaemon(cfg); probe.Running || probe.Detail() != "stopped" {
		t.Fatalf("unexpected probe %+v", probe)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer lock.Unlock()
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	probe := ProbeDaemon(cfg)
	if !probe.Running || probe.PID != 4242 || probe.Detail() != "running (pid 4242)" {
		t.Fatalf("unexpected probe %+v", probe)
	}
}
