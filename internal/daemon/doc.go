// Package daemon coordinates the long-running groundstation process.
//
// A Daemon owns the telemetry buffer, the worker group (ingest, persist,
// dashboard), the optional SQLite store, and the flock-based single-instance
// lock. It also runs the udev netlink monitor that follows serial devices as
// the flight computer is plugged in, and answers status queries for the IPC
// layer.
//
// Keep orchestration here: workers own their iterations, the daemon owns
// startup, shutdown, and cross-worker status.
package daemon
