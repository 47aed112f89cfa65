// Package httpapi exposes the chi-routed REST surface and websocket event
// stream over the job queue, model manager, and download coordinator.
package httpapi
