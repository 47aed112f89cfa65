// Package modelmgr loads model descriptors from configuration and owns the
// spawn/stop/readiness lifecycle of the engines backing them.
//
// For server-mode models, start allocates a port through the process
// registry, substitutes it into the descriptor's args and api_url, spawns
// the child with stderr captured to a bounded tail buffer, registers the
// record as starting, and polls the engine's health endpoint until it
// answers or the startup timeout elapses. For cli-mode models, start is a
// no-op: the lifecycle manager never registers one-shot invocations, only
// long-running server processes (spec design note: CLI invocations are
// per-job and own no state beyond their argv and output path).
package modelmgr
