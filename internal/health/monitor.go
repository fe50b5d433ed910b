package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// Lifecycle is the slice of the workflow manager the monitor drives.
type Lifecycle interface {
	IsActive(sessionID string) bool
	Restart(ctx context.Context, sessionID, reason string) error
	Fail(ctx context.Context, sessionID, message string) error
}

// JobLister lists jobs that still need supervision.
type JobLister interface {
	ListNonTerminal(ctx context.Context) ([]*jobs.Job, error)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Examined   int           `json:"examined"`
	Orphaned   []string      `json:"orphaned,omitempty"`
	Restarted  []string      `json:"restarted,omitempty"`
	Failed     []string      `json:"failed,omitempty"`
	Stalled    []string      `json:"stalled,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Records    []Record      `json:"-"`
	Thresholds Thresholds    `json:"-"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor periodically sweeps non-terminal jobs.
type Monitor struct {
	store      JobLister
	lifecycle  Lifecycle
	thresholds Thresholds
	ceiling    time.Duration
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	sweepMu sync.Mutex

	lastMu    sync.Mutex
	last      SweepReport
	haveSweep bool
}

// NewMonitor builds a monitor. ceiling is the absolute idle limit, normally
// the estimator ceiling.
func NewMonitor(cfg *config.Config, store JobLister, lifecycle Lifecycle, ceiling time.Duration, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		store:      store,
		lifecycle:  lifecycle,
		thresholds: ThresholdsFromConfig(cfg.Health),
		ceiling:    ceiling,
		interval:   cfg.SweepInterval(),
		logger:     logging.NewComponentLogger(logger, "health"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecoverOrphans fails every processing job without an in-memory owner with
// "interrupted by restart". It returns the affected session ids.
func (m *Monitor) RecoverOrphans(ctx context.Context) ([]string, error) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	list, err := m.store.ListNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal jobs: %w", err)
	}
	var report SweepReport
	m.recoverOrphans(ctx, list, &report)
	return report.Orphaned, nil
}

// Sweep runs one full pass: orphans first, then per-job evaluation. Calls are
// serialized.
func (m *Monitor) Sweep(ctx context.Context) (SweepReport, error) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	report := SweepReport{StartedAt: m.now().UTC(), Thresholds: m.thresholds}
	list, err := m.store.ListNonTerminal(ctx)
	if err != nil {
		return report, fmt.Errorf("list non-terminal jobs: %w", err)
	}
	report.Examined = len(list)

	remaining := m.recoverOrphans(ctx, list, &report)
	now := m.now()
	for _, job := range remaining {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if job.Status == jobs.StatusPending && m.lifecycle.IsActive(job.SessionID) {
			continue
		}
		rec := Evaluate(job, now, m.thresholds, m.ceiling)
		report.Records = append(report.Records, rec)
		m.act(ctx, job, rec, &report)
	}

	report.Duration = m.now().Sub(report.StartedAt)
	m.lastMu.Lock()
	m.last = report
	m.haveSweep = true
	m.lastMu.Unlock()

	if len(report.Orphaned)+len(report.Restarted)+len(report.Failed)+len(report.Errors) > 0 {
		m.logger.Info("health sweep acted",
			logging.Int("examined", report.Examined),
			logging.Int("orphaned", len(report.Orphaned)),
			logging.Int("restarted", len(report.Restarted)),
			logging.Int("failed", len(report.Failed)),
			logging.Int("errors", len(report.Errors)),
			logging.String(logging.FieldEventType, "health_sweep"),
		)
	} else {
		m.logger.Debug("health sweep clean", logging.Int("examined", report.Examined))
	}
	return report, nil
}

// LastSweep returns the most recent sweep report, if any.
func (m *Monitor) LastSweep() (SweepReport, bool) {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	return m.last, m.haveSweep
}

// Run sweeps on the configured interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logging.WarnWithContext(m.logger, "health sweep failed", "health_sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check job database access"),
					logging.String(logging.FieldImpact, "stalled jobs are not detected until the next sweep"),
				)
			}
		}
	}
}

// recoverOrphans fails unowned processing jobs and returns the jobs left to
// evaluate.
func (m *Monitor) recoverOrphans(ctx context.Context, list []*jobs.Job, report *SweepReport) []*jobs.Job {
	remaining := make([]*jobs.Job, 0, len(list))
	for _, job := range list {
		if job.Status != jobs.StatusProcessing || m.lifecycle.IsActive(job.SessionID) {
			remaining = append(remaining, job)
			continue
		}
		attrs := append([]logging.Attr{
			logging.String(logging.FieldSessionID, job.SessionID),
			logging.Int(logging.FieldEpoch, job.Epoch),
		}, logging.DecisionAttrs("orphan_recovery", "failed", "processing job has no active worker")...)
		m.logger.Info("recovering orphaned job", logging.Args(attrs...)...)

		if err := m.lifecycle.Fail(ctx, job.SessionID, jobs.InterruptedMessage); err != nil {
			m.recordError(report, job.SessionID, "fail orphan", err)
			continue
		}
		report.Orphaned = append(report.Orphaned, job.SessionID)
	}
	return remaining
}

func (m *Monitor) act(ctx context.Context, job *jobs.Job, rec Record, report *SweepReport) {
	if rec.IsStalled {
		report.Stalled = append(report.Stalled, job.SessionID)
	}
	switch {
	case rec.IsFailed:
		m.logDecision(job, "failed", rec)
		if err := m.lifecycle.Fail(ctx, job.SessionID, rec.Reason); err != nil {
			m.recordError(report, job.SessionID, "fail", err)
			return
		}
		report.Failed = append(report.Failed, job.SessionID)
	case rec.ShouldRestart:
		m.logDecision(job, "restart", rec)
		if err := m.lifecycle.Restart(ctx, job.SessionID, rec.Reason); err != nil {
			m.recordError(report, job.SessionID, "restart", err)
			return
		}
		report.Restarted = append(report.Restarted, job.SessionID)
	case rec.IsStalled:
		logging.WarnWithContext(m.logger, "job stalled", "job_stalled",
			logging.String(logging.FieldSessionID, job.SessionID),
			logging.Duration("idle", rec.IdleDuration),
			logging.Float64("progress", rec.Progress),
			logging.String(logging.FieldImpact, "job restarts if it stays idle past the restart threshold"),
		)
	}
}

func (m *Monitor) logDecision(job *jobs.Job, result string, rec Record) {
	attrs := append([]logging.Attr{
		logging.String(logging.FieldSessionID, job.SessionID),
		logging.Int(logging.FieldEpoch, job.Epoch),
		logging.Duration("idle", rec.IdleDuration),
		logging.Float64("progress", rec.Progress),
	}, logging.DecisionAttrs("health", result, rec.Reason)...)
	m.logger.Info("health decision", logging.Args(attrs...)...)
}

// recordError notes a failed action. Validation errors mean the job reached
// a terminal state between listing and acting and are not reported.
func (m *Monitor) recordError(report *SweepReport, sessionID, action string, err error) {
	if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
		m.logger.Debug("health action skipped",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("action", action),
			logging.Error(err),
		)
		return
	}
	report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", action, sessionID, err))
	logging.WarnWithContext(m.logger, "health action failed", "health_action_failed",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("action", action),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the job and retry with `clipforge health sweep`"),
	)
}
