package api

import (
	"time"

	"clipforge/internal/deps"
	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/progress"
)

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		SessionID:            job.SessionID,
		VideoID:              job.VideoID,
		UserID:               job.UserID,
		UserEmail:            job.UserEmail,
		Status:               string(job.Status),
		Progress:             job.Progress,
		ErrorMessage:         job.ErrorMessage,
		SourcePath:           job.SourcePath,
		CreatedAt:            formatTime(job.CreatedAt),
		UpdatedAt:            formatTime(job.UpdatedAt),
		StartedAt:            formatTimePtr(job.StartedAt),
		CompletedAt:          formatTimePtr(job.CompletedAt),
		Deadline:             formatTimePtr(job.Deadline),
		LastProgressAt:       formatTimePtr(job.LastProgressAt),
		TimeoutBudgetSeconds: job.TimeoutBudget.Seconds(),
		Restarts:             job.Epoch,
		OutputLocation:       job.OutputLocation,
		Operations:           job.Operations,
	}
	if dto.Operations == nil {
		dto.Operations = []jobs.Operation{}
	}
	return dto
}

// FromJobStatus adds the live overlay of an active attempt.
func FromJobStatus(job *jobs.Job, active bool, live *progress.Snapshot) Job {
	dto := FromJob(job)
	dto.Active = active
	if live != nil {
		snap := *live
		dto.Live = &snap
	}
	return dto
}

// FromJobs converts a slice of job records.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromSweepReport converts a health sweep report.
func FromSweepReport(report health.SweepReport) SweepReport {
	return SweepReport{
		StartedAt: formatTime(report.StartedAt),
		Duration:  report.Duration.Round(time.Millisecond).String(),
		Examined:  report.Examined,
		Orphaned:  report.Orphaned,
		Restarted: report.Restarted,
		Failed:    report.Failed,
		Stalled:   report.Stalled,
		Errors:    report.Errors,
	}
}

// FromDependency converts a dependency check.
func FromDependency(status deps.Status) DependencyStatus {
	return DependencyStatus{
		Name:        status.Name,
		Command:     status.Command,
		Description: status.Description,
		Available:   status.Available,
		Detail:      status.Detail,
	}
}

// ToJob builds an unsaved job from a submission.
func (r SubmitRequest) ToJob() *jobs.Job {
	return &jobs.Job{
		SessionID:             r.SessionID,
		VideoID:               r.VideoID,
		UserID:                r.UserID,
		UserEmail:             r.UserEmail,
		SourcePath:            r.SourcePath,
		SourceDurationSeconds: r.SourceDurationSeconds,
		SourceSizeBytes:       r.SourceSizeBytes,
		Options:               r.Options,
	}
}

// ParseTime decodes a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
