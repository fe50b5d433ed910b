package jobs

import (
	"context"
	"fmt"
	"time"
)

// BeginAttempt moves a non-terminal job into processing for the given epoch:
// progress resets to 0 and the start/deadline timestamps are refreshed. The
// write is refused (ErrStaleEpoch) when the job is terminal or already on a
// later epoch.
func (s *Store) BeginAttempt(ctx context.Context, sessionID string, epoch int, startedAt time.Time, budget time.Duration) error {
	deadline := startedAt.Add(budget)
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = 0, epoch = ?, started_at = ?, deadline = ?, timeout_budget_ms = ?,
             last_progress_at = NULL, error_message = NULL, completed_at = NULL, output_location = NULL,
             updated_at = ?
         WHERE session_id = ? AND status IN (?, ?) AND epoch <= ?`,
		StatusProcessing,
		epoch,
		startedAt.UTC().Format(timeLayout),
		deadline.UTC().Format(timeLayout),
		budget.Milliseconds(),
		s.timestamp(),
		sessionID,
		StatusPending, StatusProcessing,
		epoch,
	)
	if err != nil {
		return fmt.Errorf("begin attempt: %w", err)
	}
	if !ok {
		return fmt.Errorf("begin attempt %s epoch %d: %w", sessionID, epoch, ErrStaleEpoch)
	}
	return nil
}

// UpdateProgress persists a progress snapshot for the running epoch. The
// stored value never decreases and last_progress_at only moves when the
// percentage advances. Returns false when the job left the epoch.
func (s *Store) UpdateProgress(ctx context.Context, sessionID string, epoch int, percent float64, at time.Time) (bool, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	stamp := at.UTC().Format(timeLayout)
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs
         SET last_progress_at = CASE WHEN ? > progress THEN ? ELSE last_progress_at END,
             progress = MAX(progress, ?),
             updated_at = ?
         WHERE session_id = ? AND epoch = ? AND status = ?`,
		percent, stamp,
		percent,
		s.timestamp(),
		sessionID, epoch, StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}
	return ok, nil
}

// Complete finalizes a processing job of the given epoch.
func (s *Store) Complete(ctx context.Context, sessionID string, epoch int, outputLocation string, at time.Time) error {
	if outputLocation == "" {
		return fmt.Errorf("complete %s: output location is required", sessionID)
	}
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = 100, output_location = ?, completed_at = ?, error_message = NULL, updated_at = ?
         WHERE session_id = ? AND epoch = ? AND status = ?`,
		StatusCompleted,
		outputLocation,
		at.UTC().Format(timeLayout),
		s.timestamp(),
		sessionID, epoch, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !ok {
		return fmt.Errorf("complete %s epoch %d: %w", sessionID, epoch, ErrStaleEpoch)
	}
	return nil
}

// Fail marks a non-terminal job of the given epoch as failed.
func (s *Store) Fail(ctx context.Context, sessionID string, epoch int, message string, at time.Time) error {
	if message == "" {
		message = "unknown failure"
	}
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE session_id = ? AND epoch = ? AND status IN (?, ?)`,
		StatusFailed,
		message,
		at.UTC().Format(timeLayout),
		s.timestamp(),
		sessionID, epoch, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if !ok {
		return fmt.Errorf("fail %s epoch %d: %w", sessionID, epoch, ErrStaleEpoch)
	}
	return nil
}

// MarkFailureNotified flips the failure_notified flag. It returns true only
// for the first caller, which is then responsible for sending the
// notification.
func (s *Store) MarkFailureNotified(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs SET failure_notified = 1, updated_at = ? WHERE session_id = ? AND failure_notified = 0`,
		s.timestamp(),
		sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("mark failure notified: %w", err)
	}
	return ok, nil
}
