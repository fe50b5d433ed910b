package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/progress"
	"clipforge/internal/services"
	"clipforge/internal/transcode"
)

// failureCause carries an externally decided failure message (health
// monitor) into the worker so it records the message as the terminal state.
type failureCause struct {
	message string
}

func (f failureCause) Error() string { return f.message }

// Start runs job at the given epoch. It is the single entry point for fresh
// starts and restarts: the job is registered as active, persisted as
// processing with progress 0, StartedAt=now and Deadline=now+budget, and its
// operations run in a background goroutine under a hard timeout.
func (m *Manager) Start(ctx context.Context, job *jobs.Job, epoch int) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "workflow", "start", "job is required", nil)
	}
	budget := job.TimeoutBudget
	if budget <= 0 {
		budget = m.estimator.ForJob(job).Budget
	}

	startedAt := m.now().UTC()
	deadline := startedAt.Add(budget)
	running := job.Clone()
	running.Status = jobs.StatusProcessing
	running.Progress = 0
	running.Epoch = epoch
	running.TimeoutBudget = budget
	running.StartedAt = &startedAt
	running.Deadline = &deadline
	running.LastProgressAt = nil
	running.CompletedAt = nil
	running.ErrorMessage = ""
	running.OutputLocation = ""
	if len(running.Operations) == 0 {
		running.Operations = running.Options.Operations()
	}

	workerCtx, cancel := context.WithCancelCause(m.baseCtx)
	workerCtx = services.WithSessionID(workerCtx, job.SessionID)
	workerCtx = services.WithEpoch(workerCtx, epoch)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		workerCtx = services.WithRequestID(workerCtx, rid)
	}

	entry := &activeJob{
		sessionID: job.SessionID,
		cancel:    cancel,
		epoch:     epoch,
		budget:    budget,
		done:      make(chan struct{}),
		tracker:   progress.NewTracker(epoch),
		sampler:   logging.NewProgressSampler(10),
		job:       running,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel(errShutdown)
		return errShutdown
	}
	if existing := m.active[job.SessionID]; existing != nil {
		m.mu.Unlock()
		cancel(nil)
		return fmt.Errorf("job %s already running at epoch %d", job.SessionID, existing.epoch)
	}
	m.active[job.SessionID] = entry
	m.workers.Add(1)
	m.mu.Unlock()

	if err := m.store.BeginAttempt(ctx, job.SessionID, epoch, startedAt, budget); err != nil {
		cancel(nil)
		m.release(entry)
		close(entry.done)
		m.workers.Done()
		return err
	}

	m.jobLogger(workerCtx, job.SessionID, epoch).Info("job started",
		logging.Int("operations", len(running.Operations)),
		logging.Duration("timeout_budget", budget),
		logging.String("deadline", deadline.Format(time.RFC3339)),
		logging.String(logging.FieldEventType, "job_started"),
	)
	m.hub.Publish(job.SessionID, statusEvent(running))

	go m.run(workerCtx, entry)
	return nil
}

func (m *Manager) run(parent context.Context, entry *activeJob) {
	defer m.workers.Done()
	defer close(entry.done)

	timeoutCause := fmt.Errorf("%w: processing exceeded its %s budget", services.ErrTimeout, entry.budget)
	ctx, cancelTimeout := context.WithTimeoutCause(parent, entry.budget, timeoutCause)
	defer cancelTimeout()
	defer entry.cancel(nil)

	job := entry.view()
	logger := m.jobLogger(ctx, job.SessionID, entry.epoch)
	dir := transcode.JobDir(m.cfg.Paths.OutputDir, job.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.finish(ctx, entry, nil, fmt.Errorf("create output directory: %w", err))
		return
	}

	persister := newProgressPersister(m, entry, m.cfg.ProgressPersistInterval())
	defer persister.stop()
	ops := job.Operations
	for i := range ops {
		op := ops[i]
		op.Input = job.SourcePath
		op.Output = transcode.OutputPath(dir, op)
		op.Status = jobs.OperationRunning
		entry.setOperation(op)

		opCtx := services.WithOperationID(ctx, op.ID)
		req := transcode.Request{
			SessionID: job.SessionID,
			Epoch:     entry.epoch,
			Operation: op,
			Input:     op.Input,
			Output:    op.Output,
		}
		logger.Debug("operation started",
			logging.String(logging.FieldOperationID, op.ID),
			logging.String("type", string(op.Type)),
		)

		total := req.Total()
		var asm progress.Assembler
		err := m.runner.Run(opCtx, req, func(line string) {
			if chunk, ok := asm.Feed(line); ok {
				m.observeChunk(entry, persister, chunk, total, i, len(ops), op.ID)
			}
		})
		if chunk, ok := asm.Flush(); ok {
			m.observeChunk(entry, persister, chunk, total, i, len(ops), op.ID)
		}
		if err != nil {
			op.Status = jobs.OperationFailed
			entry.setOperation(op)
			ops[i] = op
			persister.stop()
			m.finish(ctx, entry, ops, err)
			return
		}

		op.Status = jobs.OperationCompleted
		op.Progress = 100
		entry.setOperation(op)
		ops[i] = op
		m.observe(entry, persister, progress.Snapshot{
			Percent:     progress.Overall(i+1, len(ops), 0),
			OperationID: op.ID,
		}, true)
	}
	persister.stop()
	m.finish(ctx, entry, ops, nil)
}

func (m *Manager) observeChunk(entry *activeJob, persister *progressPersister, chunk string, total time.Duration, index, count int, opID string) {
	snap, ok := progress.Parse(chunk, total)
	if !ok {
		return
	}
	snap.OperationID = opID
	snap.Percent = progress.Overall(index, count, snap.Percent)
	m.observe(entry, persister, snap, false)
}

// observe clamps snap to the epoch maximum, publishes it and hands it to the
// persister. force bypasses the persistence interval.
func (m *Manager) observe(entry *activeJob, persister *progressPersister, snap progress.Snapshot, force bool) {
	observed, advanced := entry.tracker.Observe(snap)
	m.hub.Publish(entry.sessionID, progressEvent(entry.sessionID, observed))
	if advanced {
		entry.markProgress(m.now().UTC())
	}
	persister.offer(observed.Percent, advanced, force)

	if entry.sampler.ShouldLog(entry.epoch, observed.Percent) {
		m.logger.Info("job progress",
			logging.String(logging.FieldSessionID, entry.sessionID),
			logging.Int(logging.FieldEpoch, entry.epoch),
			logging.String(logging.FieldOperationID, observed.OperationID),
			logging.String("progress", observed.Message()),
		)
	}
}

// finish records the terminal outcome of a worker run. Superseded and
// shutdown runs write nothing.
func (m *Manager) finish(ctx context.Context, entry *activeJob, ops []jobs.Operation, runErr error) {
	defer m.release(entry)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	logger := m.jobLogger(ctx, entry.sessionID, entry.epoch)

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		var failure failureCause
		switch {
		case errors.Is(cause, services.ErrSuperseded):
			logger.Info("attempt superseded", logging.String(logging.FieldEventType, "attempt_superseded"))
			return
		case errors.Is(cause, errShutdown):
			logger.Info("worker stopped for shutdown", logging.String(logging.FieldEventType, "worker_shutdown"))
			return
		case errors.Is(cause, services.ErrCancelled):
			m.recordFailure(writeCtx, entry, jobs.CancelledMessage, false)
			return
		case errors.As(cause, &failure):
			m.recordFailure(writeCtx, entry, failure.message, true)
			return
		case errors.Is(cause, services.ErrTimeout):
			m.recordFailure(writeCtx, entry, fmt.Sprintf("processing timed out after %s", entry.budget), true)
			return
		}
	}
	if runErr != nil {
		m.recordFailure(writeCtx, entry, services.FailureMessage(runErr), true)
		return
	}
	m.recordCompletion(writeCtx, entry, ops)
}

func (m *Manager) recordCompletion(ctx context.Context, entry *activeJob, ops []jobs.Operation) {
	job := entry.view()
	logger := m.jobLogger(ctx, job.SessionID, entry.epoch)
	at := m.now().UTC()
	dir := transcode.JobDir(m.cfg.Paths.OutputDir, job.SessionID)

	manifest, err := transcode.WriteManifest(dir, job, ops, at)
	if err != nil {
		m.recordFailure(ctx, entry, "collate outputs: "+err.Error(), true)
		return
	}
	if err := m.store.Complete(ctx, job.SessionID, entry.epoch, manifest, at); err != nil {
		if errors.Is(err, jobs.ErrStaleEpoch) {
			logger.Info("completion discarded; job left this epoch", logging.String(logging.FieldEventType, "completion_stale"))
			return
		}
		logging.ErrorWithContext(logger, "failed to persist completion", "job_complete_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}

	job.Status = jobs.StatusCompleted
	job.Progress = 100
	job.OutputLocation = manifest
	job.CompletedAt = &at
	logger.Info("job completed",
		logging.String("output", manifest),
		logging.Duration("elapsed", elapsedSince(job.StartedAt, at)),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	m.hub.Publish(job.SessionID, statusEvent(job))
}

func (m *Manager) recordFailure(ctx context.Context, entry *activeJob, message string, notify bool) {
	job := entry.view()
	logger := m.jobLogger(ctx, job.SessionID, entry.epoch)
	at := m.now().UTC()
	if err := m.store.Fail(ctx, job.SessionID, entry.epoch, message, at); err != nil {
		if errors.Is(err, jobs.ErrStaleEpoch) {
			logger.Info("failure discarded; job left this epoch", logging.String(logging.FieldEventType, "failure_stale"))
			return
		}
		logging.ErrorWithContext(logger, "failed to persist job failure", "job_fail_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}

	job.Status = jobs.StatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &at
	if notify {
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String("error_message", message),
			logging.String(logging.FieldErrorHint, "inspect the job error and source media"),
			logging.String(logging.FieldImpact, "job will not produce outputs"),
		)
	} else {
		logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	}
	m.hub.Publish(job.SessionID, statusEvent(job))
	if notify {
		m.notifyFailure(job.SessionID)
	}
}

// release drops entry from the active table if it is still the registered
// attempt for its session.
func (m *Manager) release(entry *activeJob) {
	m.mu.Lock()
	if m.active[entry.sessionID] == entry {
		delete(m.active, entry.sessionID)
	}
	m.mu.Unlock()
}

func elapsedSince(start *time.Time, now time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return now.Sub(*start)
}
