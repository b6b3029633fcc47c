// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// The Telemetry service answers buffer reads (latest row, column snapshots,
// full window), daemon status, and persisted history. Every reply carries a
// copy of the data, so clients never share memory with the daemon. The client
// bounds each call with a timeout so CLI commands fail fast when the daemon is
// offline.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
