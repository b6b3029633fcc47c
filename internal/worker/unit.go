package worker

import "context"

// Unit is one iteration (looping mode) or the whole job (single-shot mode) of
// a worker. The context is canceled when the lifecycle is asked to stop.
type Unit interface {
	Run(ctx context.Context) error
}

// UnitFunc adapts a plain function to Unit.
type UnitFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f UnitFunc) Run(ctx context.Context) error { return f(ctx) }

// Health summarizes the readiness of a unit.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by units that can report their own readiness,
// such as an open serial port or a reachable database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
