// Package ingest turns the flight computer's serial output into telemetry rows.
//
// The wire format is one record per line, values separated by commas:
//
//	12.5,1034.2,87.1\n
//
// A LineSource yields raw lines (a termios-configured serial port, a replayed
// recording, or a synthetic climb profile). Worker is the producer unit: each
// iteration reads one line, parses it, and pushes the row into the shared
// buffer. Failures cost one record and surface as lifecycle faults; the next
// iteration carries on, reopening the source after I/O errors.
package ingest
