// Package models is the static model-descriptor registry: the set of
// engines declared in configuration, exposed as a read-only lookup table
// and mirrored into the job store's models table so other processes (the
// CLI, a future admin UI) can see the effective model set without parsing
// configuration themselves.
//
// This is distinct from internal/modelmgr, which owns spawning, stopping,
// and readiness-probing the processes backing these descriptors.
package models
