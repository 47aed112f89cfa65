// Package registry maintains the in-memory map of model_id to running
// engine process, tracking an arbitrary number of concurrently registered
// backends and the ports they occupy.
//
// A single mutex guards both the record map and the used-port set so the
// invariant "used ports equal the union of record ports" always holds.
// AllocatePort probes bindability with net.Listen before committing a port
// to a record, so no OS-level bind is attempted while another record holds
// that port.
package registry
