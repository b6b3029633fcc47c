package persist

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaVersion indicates the database was created by an incompatible build.
var ErrSchemaVersion = errors.New("database schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	timeLayout              = time.RFC3339Nano
)

// Sample is one persisted row.
type Sample struct {
	ID          int64
	SessionID   string
	Measurement string
	Seq         uint64
	RecordedAt  time.Time
	Fields      map[string]float64
}

// Store manages sample persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// connPragmas run on every pooled connection the driver opens.
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

func dataSourceName(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, pragma := range connPragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(pragma)
	}
	return b.String()
}

// Open initializes or connects to the sample database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// newStore wraps an existing handle without touching its schema.
func newStore(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move %s aside to start fresh)",
			ErrSchemaVersion, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const insertSample = `INSERT OR IGNORE INTO samples (session_id, measurement, seq, recorded_at, fields_json) VALUES (?, ?, ?, ?, ?)`

// Write inserts one sample. A sample already stored for the same session and
// sequence number is ignored.
func (s *Store) Write(ctx context.Context, sample Sample) error {
	if sample.SessionID == "" || sample.Measurement == "" {
		return errors.New("sample requires session and measurement")
	}
	encoded, err := encodeFields(sample.Fields)
	if err != nil {
		return err
	}
	recorded := sample.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	return s.execWithRetry(ctx, insertSample,
		sample.SessionID, sample.Measurement, int64(sample.Seq), recorded.UTC().Format(timeLayout), encoded)
}

// Recent returns up to limit samples, newest first. An empty session matches all.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, session_id, measurement, seq, recorded_at, fields_json FROM samples`
	args := []any{}
	if session != "" {
		query += ` WHERE session_id = ?`
		args = append(args, session)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			sample   Sample
			seq      int64
			recorded string
			fields   string
		)
		if err := rows.Scan(&sample.ID, &sample.SessionID, &sample.Measurement, &seq, &recorded, &fields); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Seq = uint64(seq)
		if sample.RecordedAt, err = time.Parse(timeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
		}
		if sample.Fields, err = decodeFields(fields); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// Count returns the number of stored samples.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM samples").Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// SessionSummary aggregates the samples recorded by one daemon session.
type SessionSummary struct {
	SessionID   string
	Measurement string
	Samples     int64
	First       time.Time
	Last        time.Time
}

// Sessions lists recorded sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, measurement, COUNT(1), MIN(recorded_at), MAX(recorded_at)
FROM samples
GROUP BY session_id, measurement
ORDER BY MAX(id) DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			summary     SessionSummary
			first, last string
		)
		if err := rows.Scan(&summary.SessionID, &summary.Measurement, &summary.Samples, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary.First, _ = time.Parse(timeLayout, first)
		summary.Last, _ = time.Parse(timeLayout, last)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// encodeFields stores non-finite values as JSON null.
func encodeFields(fields map[string]float64) (string, error) {
	out := make(map[string]*float64, len(fields))
	for k, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[k] = nil
			continue
		}
		out[k] = &v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}

func decodeFields(raw string) (map[string]float64, error) {
	var decoded map[string]*float64
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	out := make(map[string]float64, len(decoded))
	for k, v := range decoded {
		if v == nil {
			out[k] = math.NaN()
			continue
		}
		out[k] = *v
	}
	return out, nil
}
