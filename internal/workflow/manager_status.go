package workflow

import (
	"context"
	"log/slog"
	"slices"

	"clipforge/internal/broadcast"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/progress"
	"clipforge/internal/services"
)

// JobStatus is the merged view of a job: the stored record overlaid with the
// live state of its running attempt, if any.
type JobStatus struct {
	Job    *jobs.Job
	Active bool
	Live   *progress.Snapshot
}

// GetStatus returns the current state of a job. Live progress of an active
// attempt takes precedence over the last persisted value.
func (m *Manager) GetStatus(ctx context.Context, sessionID string) (*JobStatus, error) {
	job, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "status", "load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "status", "job "+sessionID, nil)
	}

	m.mu.Lock()
	entry := m.active[sessionID]
	_, reserved := m.reserved[sessionID]
	m.mu.Unlock()

	status := &JobStatus{Job: job, Active: entry != nil || reserved}
	if entry == nil || entry.epoch != job.Epoch || job.Status != jobs.StatusProcessing {
		return status, nil
	}
	live := entry.view()
	job.Operations = live.Operations
	if live.LastProgressAt != nil {
		job.LastProgressAt = live.LastProgressAt
	}
	if snap, ok := entry.tracker.Last(); ok {
		if snap.Percent > job.Progress {
			job.Progress = snap.Percent
		}
		status.Live = &snap
	}
	return status, nil
}

// IsActive reports whether a worker owns the job or a restart is in flight.
func (m *Manager) IsActive(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[sessionID]; ok {
		return true
	}
	_, ok := m.reserved[sessionID]
	return ok
}

// ActiveSessions lists the session ids with a running worker, sorted.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Summary reports aggregate manager state for the status endpoint.
type Summary struct {
	Active []string
	Counts map[jobs.Status]int
}

// Summary returns the active sessions and stored job counts.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	counts, err := m.store.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Active: m.ActiveSessions(), Counts: counts}, nil
}

func (m *Manager) jobLogger(ctx context.Context, sessionID string, epoch int) *slog.Logger {
	logger := logging.WithContext(ctx, m.logger)
	if _, ok := services.SessionIDFromContext(ctx); !ok {
		logger = logger.With(logging.String(logging.FieldSessionID, sessionID), logging.Int(logging.FieldEpoch, epoch))
	}
	return logger
}

func statusEvent(job *jobs.Job) broadcast.Event {
	return broadcast.StatusEvent(job)
}

func restartEvent(sessionID string, epoch int, reason string) broadcast.Event {
	return broadcast.RestartEvent(sessionID, epoch, reason)
}

func progressEvent(sessionID string, snap progress.Snapshot) broadcast.Event {
	return broadcast.ProgressEvent(sessionID, snap)
}
