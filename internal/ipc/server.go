package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"groundstation/internal/daemon"
	"groundstation/internal/logging"
	"groundstation/internal/telemetry"
)

// Server exposes the daemon via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Close stops the server, disconnects open clients, and removes the socket
// file. A call in flight is dropped along with its connection.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Latest(_ LatestRequest, resp *LatestResponse) error {
	buf := s.daemon.Buffer()
	resp.Columns = buf.Schema().Names()
	entry, ok := buf.LatestEntry()
	if !ok {
		return nil
	}
	resp.Available = true
	resp.Seq = entry.Seq
	resp.Row = telemetry.Numbers(entry.Row)
	return nil
}

func (s *service) Snapshot(req SnapshotRequest, resp *SnapshotResponse) error {
	buf := s.daemon.Buffer()
	index := req.Index
	if name := strings.TrimSpace(req.Name); name != "" {
		i, ok := buf.Schema().Index(name)
		if !ok {
			return fmt.Errorf("%w: %q", telemetry.ErrUnknownColumn, name)
		}
		index = i
	}
	values, err := buf.Snapshot(index)
	if err != nil {
		return err
	}
	resp.Column, _ = buf.Schema().Name(index)
	resp.Index = index
	resp.Values = telemetry.Numbers(values)
	return nil
}

func (s *service) Rows(req RowsRequest, resp *RowsResponse) error {
	buf := s.daemon.Buffer()
	rows := buf.Rows()
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[len(rows)-req.Limit:]
	}
	resp.Columns = buf.Schema().Names()
	resp.Seq = buf.Pushed()
	resp.Rows = make([][]telemetry.Number, 0, len(rows))
	for _, row := range rows {
		resp.Rows = append(resp.Rows, telemetry.Numbers(row))
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Session = status.Session
	resp.Started = status.Started
	resp.LockPath = status.LockPath
	resp.SocketPath = status.SocketPath
	resp.DBPath = status.DBPath
	resp.Device = status.Device
	resp.Hotplug = status.Hotplug
	resp.Columns = status.Columns
	resp.Size = status.Size
	resp.Capacity = status.Capacity
	resp.Pushed = status.Pushed
	resp.Workers = make([]WorkerStatus, 0, len(status.Workers))
	for _, w := range status.Workers {
		resp.Workers = append(resp.Workers, WorkerStatus{
			Name:       w.Name,
			Mode:       w.Mode.String(),
			State:      w.State.String(),
			Faults:     w.Faults,
			Iterations: w.Iterations,
			Started:    w.Started,
			LastError:  w.LastError,
		})
	}
	resp.Health = make([]WorkerHealth, 0, len(status.Health))
	for _, h := range status.Health {
		resp.Health = append(resp.Health, WorkerHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	store := s.daemon.Store()
	if store == nil {
		return nil
	}
	resp.Enabled = true
	total, err := store.Count(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = total
	samples, err := store.Recent(s.ctx, strings.TrimSpace(req.Session), req.Limit)
	if err != nil {
		return err
	}
	resp.Samples = make([]Sample, 0, len(samples))
	for _, sample := range samples {
		fields := make(map[string]telemetry.Number, len(sample.Fields))
		for k, v := range sample.Fields {
			fields[k] = telemetry.Number(v)
		}
		resp.Samples = append(resp.Samples, Sample{
			Session:     sample.SessionID,
			Measurement: sample.Measurement,
			Seq:         sample.Seq,
			RecordedAt:  sample.RecordedAt,
			Fields:      fields,
		})
	}
	return nil
}

func (s *service) Sessions(req SessionsRequest, resp *SessionsResponse) error {
	store := s.daemon.Store()
	if store == nil {
		return nil
	}
	resp.Enabled = true
	sessions, err := store.Sessions(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Sessions = make([]SessionSummary, 0, len(sessions))
	for _, summary := range sessions {
		resp.Sessions = append(resp.Sessions, SessionSummary{
			Session:     summary.SessionID,
			Measurement: summary.Measurement,
			Samples:     summary.Samples,
			First:       summary.First,
			Last:        summary.Last,
		})
	}
	return nil
}
