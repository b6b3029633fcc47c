package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"groundstation/internal/worker"
)

type healthyUnit struct{ name string }

func (u healthyUnit) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (u healthyUnit) HealthCheck(context.Context) worker.Health {
	return worker.Healthy(u.name)
}

func TestGroupStartStopJoin(t *testing.T) {
	var iterations atomic.Int64
	loop := func(name string) *worker.Lifecycle {
		return worker.New(name, worker.UnitFunc(func(context.Context) error {
			iterations.Add(1)
			return nil
		}), worker.Looping, worker.WithInterval(time.Millisecond))
	}
	oneShot := worker.New("once", worker.UnitFunc(func(context.Context) error { return nil }), worker.SingleShot)
	group := worker.NewGroup(loop("ingest"), loop("render"), oneShot, nil)

	if got := len(group.Members()); got != 3 {
		t.Fatalf("expected nil member to be ignored, got %d members", got)
	}
	if err := group.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	group.StopAll()
	group.StopAll() // repeated stop requests are harmless
	group.JoinAll()

	for name, state := range group.States() {
		if state != worker.StateStopped {
			t.Fatalf("member %s not stopped: %s", name, state)
		}
	}
	if iterations.Load() == 0 {
		t.Fatal("expected looping members to iterate")
	}
}

func TestGroupStartAllReportsErrors(t *testing.T) {
	block := worker.New("busy", healthyUnit{name: "busy"}, worker.Looping)
	group := worker.NewGroup(block)
	if err := block.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		group.StopAll()
		group.JoinAll()
	})

	err := group.StartAll(context.Background())
	if !errors.Is(err, worker.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from StartAll, got %v", err)
	}
}

func TestGroupJoinAllWithNoStartedMembers(t *testing.T) {
	group := worker.NewGroup(worker.New("never", healthyUnit{}, worker.Looping))
	done := make(chan struct{})
	go func() {
		group.JoinAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("JoinAll blocked on a member that never started")
	}
}

func TestGroupJoinAllContextTimesOut(t *testing.T) {
	release := make(chan struct{})
	stuck := worker.New("stuck", worker.UnitFunc(func(context.Context) error {
		<-release
		return nil
	}), worker.SingleShot)
	group := worker.NewGroup(stuck)
	if err := group.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	group.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := group.JoinAllContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	close(release)
	group.JoinAll()
}

func TestGroupStatusesAndHealth(t *testing.T) {
	group := worker.NewGroup(
		worker.New("serial", healthyUnit{name: "serial"}, worker.Looping),
		worker.New("plain", worker.UnitFunc(func(context.Context) error { return nil }), worker.SingleShot),
	)
	statuses := group.Statuses()
	if len(statuses) != 2 || statuses[0].Name != "serial" || statuses[1].Mode != worker.SingleShot {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
	health := group.Health(context.Background())
	if len(health) != 1 || !health[0].Ready || health[0].Name != "serial" {
		t.Fatalf("unexpected health %+v", health)
	}
	if m, ok := group.Lookup("plain"); !ok || m.Name() != "plain" {
		t.Fatalf("Lookup failed")
	}
}
