package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

const reservePollInterval = 10 * time.Millisecond

// Cancel stops a job on behalf of its owner. A running worker is cancelled
// (its process group is terminated) and Cancel waits for it to exit before
// returning; the job ends failed with "cancelled by user". No notification is
// sent for cancellations.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	release, err := m.hold(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if entry := m.lookup(sessionID); entry != nil {
		entry.cancel(services.ErrCancelled)
		if err := waitDone(ctx, entry); err != nil {
			return err
		}
		job, err := m.store.Get(ctx, sessionID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "workflow", "cancel", "reload job", err)
		}
		if job != nil && !job.Status.IsTerminal() {
			// The worker exited without a terminal write (superseded between
			// lookup and cancel); record the cancellation directly.
			return m.failStored(ctx, sessionID, jobs.CancelledMessage, false)
		}
		return nil
	}
	return m.failStored(ctx, sessionID, jobs.CancelledMessage, false)
}

// Restart supersedes the running attempt (which writes nothing further) and
// starts the job again at the next epoch with progress reset to 0.
func (m *Manager) Restart(ctx context.Context, sessionID, reason string) error {
	if !m.reserve(sessionID) {
		return services.Wrap(services.ErrValidation, "workflow", "restart", "another state change is in progress for "+sessionID, nil)
	}
	defer m.unreserve(sessionID)

	if entry := m.lookup(sessionID); entry != nil {
		entry.cancel(services.ErrSuperseded)
		if err := waitDone(ctx, entry); err != nil {
			return err
		}
	}

	job, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "restart", "load job", err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "restart", "job "+sessionID, nil)
	}
	if job.Status.IsTerminal() {
		return services.Wrap(services.ErrValidation, "workflow", "restart", fmt.Sprintf("job already %s", job.Status), nil)
	}

	epoch := job.Epoch + 1
	m.jobLogger(ctx, sessionID, epoch).Info("restarting job",
		logging.String("reason", reason),
		logging.Float64("progress_before", job.Progress),
		logging.String(logging.FieldEventType, "job_restarted"),
	)
	m.hub.Publish(sessionID, restartEvent(sessionID, epoch, reason))
	return m.Start(ctx, job, epoch)
}

// Fail terminates a job with message and notifies its owner once. A running
// worker is stopped first and records the failure itself.
func (m *Manager) Fail(ctx context.Context, sessionID, message string) error {
	release, err := m.hold(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if entry := m.lookup(sessionID); entry != nil {
		entry.cancel(failureCause{message: message})
		if err := waitDone(ctx, entry); err != nil {
			return err
		}
		job, err := m.store.Get(ctx, sessionID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "workflow", "fail", "reload job", err)
		}
		if job == nil || job.Status.IsTerminal() {
			return nil
		}
	}
	return m.failStored(ctx, sessionID, message, true)
}

// failStored writes a failure for a job that has no running worker.
func (m *Manager) failStored(ctx context.Context, sessionID, message string, notify bool) error {
	job, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "fail", "load job", err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "fail", "job "+sessionID, nil)
	}
	if job.Status.IsTerminal() {
		return services.Wrap(services.ErrValidation, "workflow", "fail", fmt.Sprintf("job already %s", job.Status), nil)
	}

	at := m.now().UTC()
	if err := m.store.Fail(ctx, sessionID, job.Epoch, message, at); err != nil {
		if errors.Is(err, jobs.ErrStaleEpoch) {
			return services.Wrap(services.ErrValidation, "workflow", "fail", "job changed concurrently", err)
		}
		return services.Wrap(services.ErrTransient, "workflow", "fail", "persist failure", err)
	}
	job.Status = jobs.StatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &at

	logger := m.jobLogger(ctx, sessionID, job.Epoch)
	if notify {
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("error_message", message),
			logging.String(logging.FieldErrorHint, "inspect the job error and source media"),
			logging.String(logging.FieldImpact, "job will not produce outputs"),
		)
	} else {
		logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	}
	m.hub.Publish(sessionID, statusEvent(job))
	if notify {
		m.notifyFailure(sessionID)
	}
	return nil
}

// notifyFailure sends the failure notification in the background. The store
// flag guarantees a single notification per session id no matter how many
// paths report the failure.
func (m *Manager) notifyFailure(sessionID string) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		first, err := m.store.MarkFailureNotified(ctx, sessionID)
		if err != nil {
			m.logger.Warn("failure notification dedupe failed",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "notify_dedupe_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
				logging.String(logging.FieldImpact, "owner is not notified of this failure"),
			)
			return
		}
		if !first {
			return
		}
		job, err := m.store.Get(ctx, sessionID)
		if err != nil || job == nil {
			return
		}
		if err := m.notifier.NotifyFailure(ctx, job.UserID, job.Summarize()); err != nil {
			m.logger.Debug("failure notification failed",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
		}
	}()
}

func (m *Manager) lookup(sessionID string) *activeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[sessionID]
}

func (m *Manager) reserve(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reserved[sessionID]; ok {
		return false
	}
	m.reserved[sessionID] = struct{}{}
	return true
}

func (m *Manager) unreserve(sessionID string) {
	m.mu.Lock()
	delete(m.reserved, sessionID)
	m.mu.Unlock()
}

// hold waits for the session's reservation, so a cancel or failure never
// interleaves with a restart that is moving the job to a new epoch.
func (m *Manager) hold(ctx context.Context, sessionID string) (func(), error) {
	ticker := time.NewTicker(reservePollInterval)
	defer ticker.Stop()
	for !m.reserve(sessionID) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for pending change to %s: %w", sessionID, ctx.Err())
		case <-ticker.C:
		}
	}
	return func() { m.unreserve(sessionID) }, nil
}

func waitDone(ctx context.Context, entry *activeJob) error {
	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for worker %s: %w", entry.sessionID, ctx.Err())
	}
}
