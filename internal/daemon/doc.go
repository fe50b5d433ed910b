// Package daemon coordinates the long-running clipforge process.
//
// It wires configuration, job storage, the workflow manager, the health
// monitor and the optional Redis progress mirror into a single lifecycle
// with flock-based locking to prevent multiple instances, and serves the
// HTTP API (job intake, status, cancel/restart, SSE progress streams and a
// manual health sweep).
//
// Keep orchestration logic here: job execution lives in workflow and health
// decisions in health, while the daemon focuses on startup, shutdown, and
// transport.
package daemon
