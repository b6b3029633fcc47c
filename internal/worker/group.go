package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Group is an unordered set of lifecycles managed together. It owns no
// telemetry state.
type Group struct {
	mu      sync.Mutex
	members []*Lifecycle
}

// NewGroup returns a group holding members.
func NewGroup(members ...*Lifecycle) *Group {
	g := &Group{}
	for _, m := range members {
		g.Add(m)
	}
	return g
}

// Add appends a lifecycle; nil is ignored.
func (g *Group) Add(l *Lifecycle) {
	if l == nil {
		return
	}
	g.mu.Lock()
	g.members = append(g.members, l)
	g.mu.Unlock()
}

// Members returns a copy of the member list.
func (g *Group) Members() []*Lifecycle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Lifecycle, len(g.members))
	copy(out, g.members)
	return out
}

// Lookup returns the member with the given name.
func (g *Group) Lookup(name string) (*Lifecycle, bool) {
	for _, m := range g.Members() {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// StartAll starts every member and returns the joined start errors. It does
// not wait for any member to finish.
func (g *Group) StartAll(ctx context.Context) error {
	var errs []error
	for _, m := range g.Members() {
		if err := m.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopAll requests a stop on every running member without blocking.
func (g *Group) StopAll() {
	for _, m := range g.Members() {
		_ = m.Stop()
	}
}

// JoinAll waits, concurrently, for every member to reach Stopped.
func (g *Group) JoinAll() {
	var wg sync.WaitGroup
	for _, m := range g.Members() {
		wg.Add(1)
		go func(m *Lifecycle) {
			defer wg.Done()
			m.Join()
		}(m)
	}
	wg.Wait()
}

// JoinAllContext is JoinAll bounded by ctx. It returns the joined errors of
// members that had not stopped when ctx ended.
func (g *Group) JoinAllContext(ctx context.Context) error {
	members := g.Members()
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, m *Lifecycle) {
			defer wg.Done()
			errs[i] = m.JoinContext(ctx)
		}(i, m)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// States maps member names to their current state.
func (g *Group) States() map[string]State {
	members := g.Members()
	out := make(map[string]State, len(members))
	for _, m := range members {
		out[m.Name()] = m.State()
	}
	return out
}

// Statuses returns a status snapshot per member, in insertion order.
func (g *Group) Statuses() []Status {
	members := g.Members()
	out := make([]Status, 0, len(members))
	for _, m := range members {
		out = append(out, m.Status())
	}
	return out
}

// Health collects HealthCheck results from members whose unit implements
// HealthChecker.
func (g *Group) Health(ctx context.Context) []Health {
	var out []Health
	for _, m := range g.Members() {
		if checker, ok := m.Unit().(HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
		}
	}
	return out
}
