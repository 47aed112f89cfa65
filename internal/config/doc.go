// Package config loads, normalizes, and validates forged/forge configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: the HTTP server bind address, job queue and
// database paths, model download registry settings, and the configured
// model descriptors themselves.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
