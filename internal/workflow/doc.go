// Package workflow owns the lifecycle of submitted jobs.
//
// The Manager admits jobs (per-user concurrency limit), sizes their deadline
// with the estimator, persists them, and runs their operations sequentially
// through a transcode.Runner under a hard timeout. Progress lines from the
// runner are parsed into snapshots, clamped per epoch, fanned out through the
// broadcaster and persisted on a coalescing interval.
//
// Start is the single entry point for both fresh runs and restarts; a restart
// supersedes the running attempt (which then writes nothing) and starts the
// next epoch. Cancellation, timeout and explicit failure all travel as the
// cancellation cause of the worker context so the worker goroutine is the only
// writer of a job's terminal state while it is active.
package workflow
