package preflight

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSerialDevices passes when at least one candidate is a character
// device the current user can read and write.
func CheckSerialDevices(devices []string) Result {
	const name = "Serial device"

	if len(devices) == 0 {
		return Result{Name: name, Detail: "no device configured"}
	}
	var problems []string
	for _, dev := range devices {
		detail, ok := serialDeviceUsable(dev)
		if ok {
			return Result{Name: name, Passed: true, Detail: detail}
		}
		problems = append(problems, detail)
	}
	return Result{Name: name, Detail: strings.Join(problems, "; ")}
}

func serialDeviceUsable(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s (not present)", path), false
		}
		return fmt.Sprintf("%s (stat: %v)", path, err), false
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return fmt.Sprintf("%s (not a character device)", path), false
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Sprintf("%s (no read/write access; is the user in the dialout group?)", path), false
	}
	return fmt.Sprintf("%s (read/write ok)", path), true
}

// CheckReplayFile verifies the replay file is a readable regular file.
func CheckReplayFile(path string) Result {
	const name = "Replay file"

	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d bytes)", path, info.Size())}
}

// CheckDatabase opens the sample database read-only and runs an integrity
// check. A missing database passes when its directory is writable, since the
// daemon creates it on first start.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Sample database"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := CheckDirectoryAccess(name, filepath.Dir(path))
		if !dir.Passed {
			return dir
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (open: %v)", path, err)}
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(checkCtx, "PRAGMA quick_check").Scan(&integrity); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (quick_check: %v)", path, err)}
	}
	if integrity != "ok" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (integrity: %s)", path, integrity)}
	}
	var samples int64
	if err := db.QueryRowContext(checkCtx, "SELECT COUNT(1) FROM samples").Scan(&samples); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (count samples: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d samples)", path, samples)}
}

// CheckBindAddress verifies the dashboard address can be bound.
func CheckBindAddress(bind string) Result {
	const name = "Dashboard bind"

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", bind)}
}
