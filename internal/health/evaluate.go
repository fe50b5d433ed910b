package health

import (
	"fmt"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
)

// Thresholds are the sweep limits in effect.
type Thresholds struct {
	Stall        time.Duration
	Restart      time.Duration
	PendingGrace time.Duration
	MaxRestarts  int
	// MinProgress is the percent below which an idle job counts as having
	// made no real progress.
	MinProgress float64
}

// ThresholdsFromConfig converts the [health] section.
func ThresholdsFromConfig(cfg config.Health) Thresholds {
	return Thresholds{
		Stall:        time.Duration(cfg.StallThreshold) * time.Second,
		Restart:      time.Duration(cfg.RestartThreshold) * time.Second,
		PendingGrace: time.Duration(cfg.PendingGrace) * time.Second,
		MaxRestarts:  cfg.MaxRestarts,
		MinProgress:  cfg.MinProgressPercent,
	}
}

// Record is the health verdict for one job. It is derived per sweep and
// never stored.
type Record struct {
	SessionID     string
	Status        jobs.Status
	Progress      float64
	Restarts      int
	IdleDuration  time.Duration
	IsStalled     bool
	IsFailed      bool
	ShouldRestart bool
	ShouldNotify  bool
	Reason        string
}

// Evaluate derives the health of a non-terminal job at now. ceiling is the
// absolute idle limit applied regardless of the job's own budget. A job that
// is both restart-eligible and past a failure bound is failed.
func Evaluate(job *jobs.Job, now time.Time, th Thresholds, ceiling time.Duration) Record {
	if job == nil {
		return Record{}
	}
	rec := Record{
		SessionID: job.SessionID,
		Status:    job.Status,
		Progress:  job.Progress,
		Restarts:  job.Epoch,
	}
	switch job.Status {
	case jobs.StatusPending:
		evaluatePending(&rec, job, now, th)
	case jobs.StatusProcessing:
		evaluateProcessing(&rec, job, now, th, ceiling)
	}
	rec.ShouldNotify = rec.IsFailed
	return rec
}

func evaluatePending(rec *Record, job *jobs.Job, now time.Time, th Thresholds) {
	rec.IdleDuration = since(now, job.CreatedAt)
	if rec.IdleDuration <= th.PendingGrace {
		return
	}
	rec.IsStalled = true
	reason := fmt.Sprintf("pending for %s without starting", rec.IdleDuration.Round(time.Second))
	escalate(rec, job.Epoch, th.MaxRestarts, reason)
}

func evaluateProcessing(rec *Record, job *jobs.Job, now time.Time, th Thresholds, ceiling time.Duration) {
	ref := job.CreatedAt
	if job.StartedAt != nil {
		ref = *job.StartedAt
	}
	if job.LastProgressAt != nil {
		ref = *job.LastProgressAt
	}
	rec.IdleDuration = since(now, ref)

	lowProgress := job.Progress < th.MinProgress
	rec.IsStalled = rec.IdleDuration > th.Stall && lowProgress
	restartEligible := rec.IdleDuration > th.Restart && lowProgress

	budget := job.TimeoutBudget
	if budget <= 0 {
		budget = ceiling
	}
	switch {
	case job.StartedAt != nil && budget > 0 && since(now, *job.StartedAt) > budget:
		rec.IsFailed = true
		rec.Reason = fmt.Sprintf("exceeded deadline of %s", budget)
	case ceiling > 0 && rec.IdleDuration > ceiling:
		rec.IsFailed = true
		rec.Reason = fmt.Sprintf("no progress for %s", rec.IdleDuration.Round(time.Second))
	case restartEligible:
		reason := fmt.Sprintf("stalled for %s at %.1f%%", rec.IdleDuration.Round(time.Second), job.Progress)
		escalate(rec, job.Epoch, th.MaxRestarts, reason)
	case rec.IsStalled:
		rec.Reason = fmt.Sprintf("no progress for %s", rec.IdleDuration.Round(time.Second))
	}
}

// escalate restarts while budget remains and otherwise fails the job.
func escalate(rec *Record, restarts, maxRestarts int, reason string) {
	if restarts < maxRestarts {
		rec.ShouldRestart = true
		rec.Reason = reason
		return
	}
	rec.IsFailed = true
	rec.Reason = fmt.Sprintf("gave up after %d restarts: %s", restarts, reason)
}

func since(now, t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return d
}
