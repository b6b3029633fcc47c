package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"groundstation/internal/metrics"
	"groundstation/internal/telemetry"
	"groundstation/internal/worker"
)

// Worker is the visualization unit: one frame built and broadcast per
// iteration. Frames are only built while someone is listening.
type Worker struct {
	buf     *telemetry.Buffer
	hub     *Hub
	metrics *metrics.Metrics

	mu        sync.Mutex
	published uint64
	lastSeq   uint64
	lastFrame time.Time
}

// NewWorker returns a render unit publishing buf to hub.
func NewWorker(buf *telemetry.Buffer, hub *Hub, m *metrics.Metrics) *Worker {
	return &Worker{buf: buf, hub: hub, metrics: m}
}

// Run builds and publishes one frame.
func (w *Worker) Run(context.Context) error {
	if w.hub.Clients() == 0 {
		return nil
	}
	frame := BuildFrame(w.buf)
	_, dropped, err := w.hub.Publish(frame)
	if err != nil {
		if errors.Is(err, ErrHubClosed) {
			return nil
		}
		return err
	}
	w.metrics.FramePublished(dropped)

	w.mu.Lock()
	w.published++
	w.lastSeq = frame.Seq
	w.lastFrame = frame.GeneratedAt
	w.mu.Unlock()
	return nil
}

// Published returns the number of frames broadcast.
func (w *Worker) Published() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

// HealthCheck reports stream client count and the last frame sequence.
func (w *Worker) HealthCheck(context.Context) worker.Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := worker.Healthy("render")
	if w.published > 0 {
		h.Detail = fmt.Sprintf("last frame seq %d at %s", w.lastSeq, w.lastFrame.Format(time.RFC3339))
	} else {
		h.Detail = "no stream clients"
	}
	return h
}
