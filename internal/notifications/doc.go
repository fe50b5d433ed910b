// Package notifications sends push notifications through ntfy.
//
// The lifecycle manager and health monitor call NotifyFailure once per failed
// job; deduplication happens in the job store before the call is made. When
// no topic is configured the service is a no-op.
package notifications
