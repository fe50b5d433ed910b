// Package services defines shared utilities consumed by the job lifecycle
// manager, the health monitor, and the transcoder integration.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, run epochs, operation IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (external tool, timeout, cancellation, admission) so callers can render
//     consistent user-facing messages.
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability) stays uniform across the daemon.
package services
