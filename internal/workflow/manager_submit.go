package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// Submit validates and admits a job, persists it as pending and starts it.
// A missing session id is generated. When the owner already has the
// configured number of non-terminal jobs the submission is rejected with
// services.ErrAdmission and nothing is persisted.
func (m *Manager) Submit(ctx context.Context, job *jobs.Job) (string, error) {
	if err := m.prepareSubmission(job); err != nil {
		return "", err
	}

	if err := m.admit(ctx, job); err != nil {
		return "", err
	}

	logger := m.jobLogger(ctx, job.SessionID, 0)
	logger.Info("job submitted",
		logging.String(logging.FieldUserID, job.UserID),
		logging.Int("operations", len(job.Operations)),
		logging.Duration("timeout_budget", job.TimeoutBudget),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	m.hub.Publish(job.SessionID, statusEvent(job))

	if err := m.Start(ctx, job, 0); err != nil {
		logging.ErrorWithContext(logger, "job start failed", "job_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		if errors.Is(err, errShutdown) {
			// Left pending; the health monitor restarts it after the grace period.
			return job.SessionID, err
		}
		if failErr := m.failStored(ctx, job.SessionID, "start failed: "+err.Error(), true); failErr != nil {
			logger.Warn("could not record start failure", logging.Error(failErr))
		}
		return job.SessionID, err
	}
	return job.SessionID, nil
}

func (m *Manager) prepareSubmission(job *jobs.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "job is required", nil)
	}
	job.SessionID = strings.TrimSpace(job.SessionID)
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
	}
	job.UserID = strings.TrimSpace(job.UserID)
	if job.UserID == "" {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "user id is required", nil)
	}
	if strings.TrimSpace(job.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "source path is required", nil)
	}
	if job.SourceSizeBytes == 0 {
		// A local source reports its own size; remote references keep 0 and
		// skip the size surcharge.
		if info, err := os.Stat(job.SourcePath); err == nil && info.Mode().IsRegular() {
			job.SourceSizeBytes = info.Size()
		}
	}
	if job.SourceDurationSeconds < 0 || job.SourceSizeBytes < 0 {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "source facts must not be negative", nil)
	}
	if err := job.Options.Validate(job.SourceDurationSeconds); err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "invalid processing options", err)
	}

	job.Status = jobs.StatusPending
	job.Progress = 0
	job.ErrorMessage = ""
	job.Epoch = 0
	job.FailureNotified = false
	job.OutputLocation = ""
	job.StartedAt, job.CompletedAt, job.Deadline, job.LastProgressAt = nil, nil, nil, nil
	job.Operations = job.Options.Operations()
	job.TimeoutBudget = m.estimator.ForJob(job).Budget
	return nil
}

func (m *Manager) admit(ctx context.Context, job *jobs.Job) error {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	limit := m.cfg.Jobs.MaxConcurrentPerUser
	count, err := m.store.CountActiveForUser(ctx, job.UserID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "admission", "count active jobs", err)
	}
	if limit > 0 && count >= limit {
		attrs := append([]logging.Attr{logging.String(logging.FieldUserID, job.UserID)},
			logging.DecisionAttrs("admission", "rejected", fmt.Sprintf("%d active jobs, limit %d", count, limit))...)
		m.logger.Info("submission rejected", logging.Args(attrs...)...)
		return services.Wrap(services.ErrAdmission, "workflow", "admission",
			fmt.Sprintf("user %s already has %d active jobs (limit %d)", job.UserID, count, limit), nil)
	}

	if err := m.store.Create(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return services.Wrap(services.ErrValidation, "workflow", "submit", "session id already exists", err)
		}
		return services.Wrap(services.ErrTransient, "workflow", "submit", "persist job", err)
	}
	return nil
}
