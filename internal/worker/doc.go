// Package worker runs long-lived daemon tasks under a cooperative lifecycle.
//
// A Lifecycle wraps a Unit (anything with Run(ctx) error) and drives it
// through Idle, Running, Stopping and Stopped. Single-shot lifecycles run the
// unit once on their own goroutine; looping lifecycles call it repeatedly and
// check for a stop request between iterations. Stop never preempts an
// iteration in flight: it cancels the context handed to the unit, and units
// that block on I/O are expected to honour that context or use bounded
// timeouts.
//
// Unit errors and recovered panics are faults. By default a fault is logged
// and the loop continues; WithFailFast stops the lifecycle on the first one.
//
// Group collects lifecycles so the daemon can start, stop, and join them
// together.
package worker
