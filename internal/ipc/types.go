package ipc

import (
	"time"

	"groundstation/internal/telemetry"
)

// ServiceName is the registered JSON-RPC service.
const ServiceName = "Telemetry"

// LatestRequest fetches the newest row.
type LatestRequest struct{}

// LatestResponse carries the newest row. Available is false when the buffer
// is empty.
type LatestResponse struct {
	Available bool               `json:"available"`
	Seq       uint64             `json:"seq"`
	Columns   []string           `json:"columns"`
	Row       []telemetry.Number `json:"row"`
}

// SnapshotRequest addresses one column by name or, when Name is empty, by index.
type SnapshotRequest struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// SnapshotResponse carries one column, oldest first.
type SnapshotResponse struct {
	Column string             `json:"column"`
	Index  int                `json:"index"`
	Values []telemetry.Number `json:"values"`
}

// RowsRequest fetches the retained rows. Limit > 0 keeps only the newest Limit rows.
type RowsRequest struct {
	Limit int `json:"limit"`
}

// RowsResponse carries rows oldest first.
type RowsResponse struct {
	Columns []string             `json:"columns"`
	Seq     uint64               `json:"seq"`
	Rows    [][]telemetry.Number `json:"rows"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// WorkerStatus is the wire form of worker.Status.
type WorkerStatus struct {
	Name       string    `json:"name"`
	Mode       string    `json:"mode"`
	State      string    `json:"state"`
	Faults     uint64    `json:"faults"`
	Iterations uint64    `json:"iterations"`
	Started    time.Time `json:"started"`
	LastError  string    `json:"last_error"`
}

// WorkerHealth is the wire form of worker.Health.
type WorkerHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail"`
}

// StatusResponse represents combined daemon and buffer status.
type StatusResponse struct {
	Running    bool           `json:"running"`
	PID        int            `json:"pid"`
	Session    string         `json:"session"`
	Started    time.Time      `json:"started"`
	LockPath   string         `json:"lock_path"`
	SocketPath string         `json:"socket_path"`
	DBPath     string         `json:"db_path"`
	Device     string         `json:"device"`
	Hotplug    bool           `json:"hotplug"`
	Columns    []string       `json:"columns"`
	Size       int            `json:"size"`
	Capacity   int            `json:"capacity"`
	Pushed     uint64         `json:"pushed"`
	Workers    []WorkerStatus `json:"workers"`
	Health     []WorkerHealth `json:"health"`
}

// HistoryRequest lists persisted samples. An empty Session matches every session.
type HistoryRequest struct {
	Session string `json:"session"`
	Limit   int    `json:"limit"`
}

// Sample is the wire form of persist.Sample.
type Sample struct {
	Session     string                      `json:"session"`
	Measurement string                      `json:"measurement"`
	Seq         uint64                      `json:"seq"`
	RecordedAt  time.Time                   `json:"recorded_at"`
	Fields      map[string]telemetry.Number `json:"fields"`
}

// HistoryResponse carries persisted samples, newest first.
type HistoryResponse struct {
	Enabled bool     `json:"enabled"`
	Total   int64    `json:"total"`
	Samples []Sample `json:"samples"`
}

// SessionsRequest lists recorded sessions, most recent first.
type SessionsRequest struct {
	Limit int `json:"limit"`
}

// SessionSummary is the wire form of persist.SessionSummary.
type SessionSummary struct {
	Session     string    `json:"session"`
	Measurement string    `json:"measurement"`
	Samples     int64     `json:"samples"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}

// SessionsResponse carries recorded sessions.
type SessionsResponse struct {
	Enabled  bool             `json:"enabled"`
	Sessions []SessionSummary `json:"sessions"`
}
