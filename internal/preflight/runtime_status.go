package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"groundstation/internal/config"
)

// DaemonProbe reports whether a daemon holds the instance lock.
type DaemonProbe struct {
	Running  bool
	PID      int
	LockPath string
	Socket   bool
}

// ProbeDaemon inspects the instance lock and socket without contacting the
// daemon. Taking the lock succeeds only when no daemon holds it.
func ProbeDaemon(cfg *config.Config) DaemonProbe {
	if cfg == nil {
		return DaemonProbe{}
	}
	probe := DaemonProbe{LockPath: cfg.LockPath()}
	if _, err := os.Stat(cfg.SocketPath()); err == nil {
		probe.Socket = true
	}
	if _, err := os.Stat(probe.LockPath); err != nil {
		return probe
	}

	lock := flock.New(probe.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return probe
	}
	if locked {
		_ = lock.Unlock()
		return probe
	}
	probe.Running = true
	probe.PID = readPID(cfg.PIDPath())
	return probe
}

// Detail renders a display-friendly summary for status output.
func (p DaemonProbe) Detail() string {
	switch {
	case p.Running && p.PID > 0:
		return fmt.Sprintf("running (pid %d)", p.PID)
	case p.Running:
		return "running"
	case p.Socket:
		return "stopped (stale socket)"
	default:
		return "stopped"
	}
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
