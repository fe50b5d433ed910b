package api

import (
	"clipforge/internal/jobs"
	"clipforge/internal/progress"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	SessionID             string                 `json:"session_id,omitempty"`
	VideoID               string                 `json:"video_id"`
	UserID                string                 `json:"user_id"`
	UserEmail             string                 `json:"user_email,omitempty"`
	SourcePath            string                 `json:"source_path"`
	SourceDurationSeconds float64                `json:"source_duration_seconds"`
	SourceSizeBytes       int64                  `json:"source_size_bytes,omitempty"`
	Options               jobs.ProcessingOptions `json:"options"`
}

// SubmitResponse is returned after a job is admitted.
type SubmitResponse struct {
	SessionID string `json:"session_id"`
	Job       Job    `json:"job"`
}

// RestartRequest is the optional body of POST /api/jobs/{id}/restart.
type RestartRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Job describes a job in a transport-friendly format.
type Job struct {
	SessionID            string             `json:"session_id"`
	VideoID              string             `json:"video_id"`
	UserID               string             `json:"user_id"`
	UserEmail            string             `json:"user_email,omitempty"`
	Status               string             `json:"status"`
	Progress             float64            `json:"progress"`
	ErrorMessage         string             `json:"error_message,omitempty"`
	SourcePath           string             `json:"source_path"`
	CreatedAt            string             `json:"created_at,omitempty"`
	UpdatedAt            string             `json:"updated_at,omitempty"`
	StartedAt            string             `json:"started_at,omitempty"`
	CompletedAt          string             `json:"completed_at,omitempty"`
	Deadline             string             `json:"deadline,omitempty"`
	LastProgressAt       string             `json:"last_progress_at,omitempty"`
	TimeoutBudgetSeconds float64            `json:"timeout_budget_seconds"`
	Restarts             int                `json:"restarts"`
	OutputLocation       string             `json:"output_location,omitempty"`
	Operations           []jobs.Operation   `json:"operations"`
	Active               bool               `json:"active"`
	Live                 *progress.Snapshot `json:"live,omitempty"`
}

// JobListResponse wraps job listings.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// SweepReport mirrors health.SweepReport.
type SweepReport struct {
	StartedAt string   `json:"started_at"`
	Duration  string   `json:"duration"`
	Examined  int      `json:"examined"`
	Orphaned  []string `json:"orphaned,omitempty"`
	Restarted []string `json:"restarted,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Stalled   []string `json:"stalled,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// DaemonStatus is returned by GET /api/status.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"started_at,omitempty"`
	DatabasePath string             `json:"database_path"`
	LockFilePath string             `json:"lock_file_path"`
	ActiveJobs   []string           `json:"active_jobs"`
	Counts       map[string]int     `json:"counts"`
	Subscribers  int                `json:"subscribers"`
	RedisMirror  bool               `json:"redis_mirror"`
	LastSweep    *SweepReport       `json:"last_sweep,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// NotifyResponse is returned by POST /api/notify/test.
type NotifyResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
