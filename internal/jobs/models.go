package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Failure messages written by the lifecycle manager and health monitor.
const (
	CancelledMessage   = "cancelled by user"
	InterruptedMessage = "interrupted by restart"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the unit of submitted work.
type Job struct {
	SessionID string
	VideoID   string
	UserID    string
	UserEmail string

	Status       Status
	Progress     float64
	ErrorMessage string

	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Deadline       *time.Time
	LastProgressAt *time.Time
	TimeoutBudget  time.Duration

	SourcePath            string
	SourceDurationSeconds float64
	SourceSizeBytes       int64

	Options    ProcessingOptions
	Operations []Operation

	OutputLocation string

	// Epoch is 0 for the first run and increments on every restart, so it
	// doubles as the restart count.
	Epoch           int
	FailureNotified bool
}

// SourceSizeGB returns the source size in gigabytes.
func (j *Job) SourceSizeGB() float64 {
	if j == nil || j.SourceSizeBytes <= 0 {
		return 0
	}
	return float64(j.SourceSizeBytes) / (1 << 30)
}

// SourceDuration returns the source media duration.
func (j *Job) SourceDuration() time.Duration {
	if j == nil || j.SourceDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(j.SourceDurationSeconds * float64(time.Second))
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.Deadline = cloneTime(j.Deadline)
	cp.LastProgressAt = cloneTime(j.LastProgressAt)
	cp.Options = j.Options.Clone()
	if j.Operations != nil {
		cp.Operations = make([]Operation, len(j.Operations))
		copy(cp.Operations, j.Operations)
	}
	return &cp
}

// Summary is the compact view of a job used in notifications.
type Summary struct {
	SessionID    string
	VideoID      string
	UserEmail    string
	Status       Status
	Progress     float64
	ErrorMessage string
	Epoch        int
	Operations   int
}

// Summarize builds a Summary for the job.
func (j *Job) Summarize() Summary {
	if j == nil {
		return Summary{}
	}
	return Summary{
		SessionID:    j.SessionID,
		VideoID:      j.VideoID,
		UserEmail:    j.UserEmail,
		Status:       j.Status,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
		Epoch:        j.Epoch,
		Operations:   len(j.Operations),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
