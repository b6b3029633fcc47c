// Package preflight provides readiness checks for the serial link, local
// paths, the sample database, and the dashboard bind address.
//
// These checks run in two contexts:
//   - The CLI "groundstation check" command runs RunAll and prints a table.
//   - The CLI "groundstation status" command uses ProbeDaemon to tell a
//     stopped daemon from an unreachable socket.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
