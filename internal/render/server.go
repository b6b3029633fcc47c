package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groundstation/internal/logging"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// HealthFunc reports the readiness of the daemon's workers.
type HealthFunc func(ctx context.Context) []worker.Health

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithHealth sets the source for /healthz.
func WithHealth(fn HealthFunc) ServerOption {
	return func(s *Server) { s.health = fn }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server is the dashboard HTTP endpoint. It runs as a single-shot unit.
type Server struct {
	bind     string
	buf      *telemetry.Buffer
	hub      *Hub
	gatherer prometheus.Gatherer
	health   HealthFunc
	token    string
	logger   *slog.Logger
	handler  http.Handler
	requests atomic.Uint64

	mu   sync.Mutex
	addr string
}

// NewServer builds the dashboard server for bind.
func NewServer(bind string, buf *telemetry.Buffer, hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		bind:   strings.TrimSpace(bind),
		buf:    buf,
		hub:    hub,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/healthz", s.handleHealth)
	if hub != nil {
		mux.Handle("/api/stream", getOnly(hub))
	}
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.handler = s.traceRequests(authMiddleware(s.token, mux))
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on the bind address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("dashboard listen: %w", err)
	}
	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("dashboard listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard serve: %w", err)
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("dashboard shutdown incomplete", logging.Error(err))
		_ = srv.Close()
	}
	s.logger.Info("dashboard stopped")
	return nil
}

type latestResponse struct {
	Seq     uint64                      `json:"seq"`
	Columns []string                    `json:"columns"`
	Row     []telemetry.Number          `json:"row"`
	Values  map[string]telemetry.Number `json:"values"`
}

type snapshotResponse struct {
	Column string             `json:"column"`
	Index  int                `json:"index"`
	Values []telemetry.Number `json:"values"`
}

type healthResponse struct {
	Ready  bool          `json:"ready"`
	Checks []healthCheck `json:"checks"`
}

type healthCheck struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, BuildFrame(s.buf))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entry, ok := s.buf.LatestEntry()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no telemetry received yet")
		return
	}
	names := s.buf.Schema().Names()
	resp := latestResponse{
		Seq:     entry.Seq,
		Columns: names,
		Row:     telemetry.Numbers(entry.Row),
		Values:  make(map[string]telemetry.Number, len(names)),
	}
	for i, name := range names {
		resp.Values[name] = telemetry.Number(entry.Row[i])
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	column := strings.TrimSpace(r.URL.Query().Get("column"))
	if column == "" {
		s.writeError(w, http.StatusBadRequest, "column is required")
		return
	}
	index, err := resolveColumn(s.buf.Schema(), column)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	values, err := s.buf.Snapshot(index)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, _ := s.buf.Schema().Name(index)
	s.writeJSON(w, http.StatusOK, snapshotResponse{Column: name, Index: index, Values: telemetry.Numbers(values)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := healthResponse{Ready: true, Checks: []healthCheck{}}
	if s.health != nil {
		for _, h := range s.health(r.Context()) {
			resp.Checks = append(resp.Checks, healthCheck{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
			if !h.Ready {
				resp.Ready = false
			}
		}
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// resolveColumn accepts a column name or a decimal index.
func resolveColumn(schema telemetry.ColumnSchema, column string) (int, error) {
	if index, ok := schema.Index(column); ok {
		return index, nil
	}
	index, err := strconv.Atoi(column)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", telemetry.ErrUnknownColumn, column)
	}
	if index < 0 || index >= schema.Len() {
		return 0, &telemetry.IndexOutOfRangeError{Index: index, Columns: schema.Len()}
	}
	return index, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// traceRequests stamps each request with a correlation id and logs it at
// debug level.
func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := "dash-" + strconv.FormatUint(s.requests.Add(1), 10)
		ctx := logging.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.logger).Debug("dashboard request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = w.Write([]byte(`{"error":"method not allowed"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
