// Package config loads, normalizes, and validates groundstation configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GROUNDSTATION_SERIAL_DEVICE. The Config type centralizes every knob the
// daemon and CLI need: the telemetry schema and buffer size, the serial link,
// the persistence sink, the dashboard, and worker fault policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
