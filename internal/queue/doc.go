// Package queue persists generation jobs and their resulting images in
// SQLite and exposes the operations that drive a job's lifecycle.
//
// The Store manages database connections, schema initialization, atomic
// claim of the next pending job (ClaimNextPending), progress/heartbeat
// tracking, and stale-claim recovery on daemon restart. A job row merges
// queue and history columns: the same row that was pending is still present,
// with its final status and images, once it completes.
//
// Schema changes bump schemaVersion in schema.go; users clear the database
// to adopt a new schema.
package queue
