// Package main hosts the groundstation CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground, translates
// read commands (status, latest, snapshot, history) into IPC calls against
// it, runs preflight checks, and scaffolds configuration. Configuration
// resolution and socket discovery live in commandContext so subcommands can
// focus on output.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through dedicated commands or flags here.
package main
