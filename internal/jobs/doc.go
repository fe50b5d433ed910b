// Package jobs persists media processing jobs in SQLite and defines the job
// model shared by the lifecycle manager, health monitor, and API.
//
// The Store is keyed by the caller-supplied session id. Lifecycle writes that
// race with restarts (progress flushes, completion, failure) are conditional on
// the job's run epoch so a superseded worker can never overwrite the state of
// the attempt that replaced it. Progress persistence is monotone in SQL.
//
// Operations are not stored independently: a job's ProcessingOptions
// round-trip through JSON and the operation list is rebuilt from them on every
// read, which is what lets a restart reconstruct the exact original work.
//
// Schema changes bump the version in schema.go; operators clear the database
// to adopt the new schema.
package jobs
