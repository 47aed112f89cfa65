// Package daemon coordinates the long-running forged process.
//
// It wires configuration, the job store, the model process manager, the
// download coordinator, the event bus, and the HTTP API into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon focuses on startup, shutdown, and high level coordination;
// individual subsystems live in their own packages.
package daemon
