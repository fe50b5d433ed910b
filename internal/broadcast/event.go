package broadcast

import (
	"time"

	"clipforge/internal/jobs"
	"clipforge/internal/progress"
)

// Kind classifies an Event.
type Kind string

const (
	// KindProgress carries a new progress snapshot.
	KindProgress Kind = "progress"
	// KindStatus announces a lifecycle transition.
	KindStatus Kind = "status"
	// KindRestart marks the start of a new epoch; progress resets to 0.
	KindRestart Kind = "restart"
)

// Event is the unit delivered to subscribers.
type Event struct {
	SessionID string             `json:"session_id"`
	Kind      Kind               `json:"kind"`
	Epoch     int                `json:"epoch"`
	Status    jobs.Status        `json:"status,omitempty"`
	Progress  float64            `json:"progress"`
	Snapshot  *progress.Snapshot `json:"snapshot,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp time.Time          `json:"ts"`
}

// ProgressEvent builds a progress event from a snapshot.
func ProgressEvent(sessionID string, snap progress.Snapshot) Event {
	s := snap
	return Event{
		SessionID: sessionID,
		Kind:      KindProgress,
		Epoch:     snap.Epoch,
		Status:    jobs.StatusProcessing,
		Progress:  snap.Percent,
		Snapshot:  &s,
		Message:   snap.Message(),
	}
}

// StatusEvent builds a lifecycle event for the job's current state.
func StatusEvent(job *jobs.Job) Event {
	evt := Event{
		SessionID: job.SessionID,
		Kind:      KindStatus,
		Epoch:     job.Epoch,
		Status:    job.Status,
		Progress:  job.Progress,
	}
	if job.Status == jobs.StatusFailed {
		evt.Message = job.ErrorMessage
	}
	return evt
}

// RestartEvent announces that the job begins a new epoch.
func RestartEvent(sessionID string, epoch int, reason string) Event {
	return Event{
		SessionID: sessionID,
		Kind:      KindRestart,
		Epoch:     epoch,
		Status:    jobs.StatusProcessing,
		Message:   reason,
	}
}
