package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"groundstation/internal/logging"
	"groundstation/internal/metrics"
)

var (
	// ErrTooManyClients is returned when the hub is at its client limit.
	ErrTooManyClients = errors.New("too many stream clients")
	// ErrHubClosed is returned after Close.
	ErrHubClosed = errors.New("stream hub closed")
)

const (
	defaultClientQueue = 4
	heartbeatInterval  = 15 * time.Second
)

// Message is an encoded frame ready for the wire.
type Message struct {
	ID   uint64
	Data []byte
}

// Subscription is one client's view of the hub.
type Subscription struct {
	ID     uint64
	C      <-chan Message
	events chan Message
	hub    *Hub
	once   sync.Once
}

// Close unsubscribes; it is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub fans frames out to stream clients.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uint64]*Subscription
	nextID     uint64
	maxClients int
	queue      int
	last       *Message
	closed     bool

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub returns a hub accepting at most maxClients subscribers. Zero means
// unlimited.
func NewHub(maxClients int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		clients:    make(map[uint64]*Subscription),
		maxClients: maxClients,
		queue:      defaultClientQueue,
		metrics:    m,
		logger:     logger,
	}
}

// Subscribe registers a client. The most recent frame, if any, is queued
// immediately so new dashboards do not start blank.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		return nil, ErrTooManyClients
	}
	h.nextID++
	events := make(chan Message, h.queue)
	sub := &Subscription{ID: h.nextID, C: events, events: events, hub: h}
	if h.last != nil {
		events <- *h.last
	}
	h.clients[sub.ID] = sub
	h.metrics.StreamClients(len(h.clients))
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub.ID]; !ok {
		return
	}
	delete(h.clients, sub.ID)
	close(sub.events)
	h.metrics.StreamClients(len(h.clients))
}

// Publish encodes frame once and offers it to every client without blocking.
// It returns the number of clients that received it and the number that were
// skipped because their queue was full.
func (h *Hub) Publish(frame Frame) (delivered, dropped int, err error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, 0, fmt.Errorf("encode frame: %w", err)
	}
	msg := Message{ID: frame.Seq, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, 0, ErrHubClosed
	}
	h.last = &msg
	for _, sub := range h.clients {
		select {
		case sub.events <- msg:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped, nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.clients {
		delete(h.clients, id)
		close(sub.events)
	}
	h.metrics.StreamClients(0)
}

// ServeHTTP streams frames as Server-Sent Events until the client goes away
// or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}
	sub, err := h.Subscribe()
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrTooManyClients) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), status)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("stream client connected",
		logging.Uint64("client", sub.ID),
		logging.String("remote", r.RemoteAddr),
	)
	defer h.logger.Debug("stream client disconnected", logging.Uint64("client", sub.ID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C:
			if !open {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg Message) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: frame\ndata: %s\n\n", strconv.FormatUint(msg.ID, 10), msg.Data)
	return err
}
