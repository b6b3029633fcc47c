// Package render turns the telemetry buffer into dashboard frames and serves
// them over HTTP.
//
// BuildFrame copies the whole buffer under one lock. Hub fans encoded frames
// out to Server-Sent Events clients; a client whose queue is full misses
// frames instead of slowing the publisher. Worker publishes one frame per
// iteration and Server exposes the JSON endpoints, the event stream, health,
// and Prometheus metrics.
package render
