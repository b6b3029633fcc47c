// Package telemetry holds the bounded, concurrently-read history of decoded
// telemetry rows shared between the serial ingester and its consumers.
//
// A Buffer is created once per daemon with a fixed ColumnSchema and capacity.
// The single producer calls Push; any number of readers call Latest, Snapshot
// and friends. Storage is a fixed arena of row slots addressed by a head index,
// so eviction of the oldest row is an index bump rather than a reallocation.
//
// Every read returns a copy taken under the buffer's read lock. Callers never
// observe a half-written row, a row of the wrong width, or a size larger than
// the capacity, and they are free to retain or mutate what they receive.
//
// The schema is metadata only; it is never stored as a row.
package telemetry
