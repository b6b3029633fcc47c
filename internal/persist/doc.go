// Package persist records telemetry rows in a local SQLite time-series table.
//
// Store owns the database (WAL journal, busy timeout, retry on SQLITE_BUSY).
// Worker is the persistence unit: each cycle it takes the buffer's latest
// entry, skips it when the sequence number has not advanced, and otherwise
// writes it as a schema-named field map tagged with the measurement name and
// the daemon session.
package persist
