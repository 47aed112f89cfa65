// Package downloads implements the resumable, cancellable multi-file model
// download coordinator. Each download is a sequence of files fetched one
// at a time from a remote model registry, with per-file HTTP range-resume
// and live per-file and aggregate progress reported to internal/events.
package downloads
