package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Create inserts a new job. The job's CreatedAt/UpdatedAt are stamped when
// zero. Returns ErrDuplicate if the session id is taken.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.SessionID) == "" {
		return errors.New("job session id is required")
	}
	optionsJSON, err := MarshalOptions(job.Options)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (`+jobColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.rowArgs(job, optionsJSON)...,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, job.SessionID)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) rowArgs(job *Job, optionsJSON string) []any {
	return []any{
		job.SessionID,
		job.VideoID,
		job.UserID,
		nullableString(job.UserEmail),
		job.Status,
		job.Progress,
		nullableString(job.ErrorMessage),
		job.CreatedAt.UTC().Format(timeLayout),
		job.UpdatedAt.UTC().Format(timeLayout),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.Deadline),
		nullableTime(job.LastProgressAt),
		job.TimeoutBudget.Milliseconds(),
		nullableString(job.SourcePath),
		job.SourceDurationSeconds,
		job.SourceSizeBytes,
		optionsJSON,
		nullableString(job.OutputLocation),
		job.Epoch,
		boolToInt(job.FailureNotified),
	}
}

// Get fetches a job by session id. It returns nil, nil when no job exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE session_id = ?`, sessionID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists every field of an existing job unconditionally.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	optionsJSON, err := MarshalOptions(job.Options)
	if err != nil {
		return err
	}
	job.UpdatedAt = s.now().UTC()
	args := s.rowArgs(job, optionsJSON)
	// Move session_id from the head of the column list to the WHERE clause.
	args = append(args[1:], job.SessionID)
	ok, err := s.execAffected(
		ctx,
		`UPDATE jobs
         SET video_id = ?, user_id = ?, user_email = ?, status = ?, progress = ?, error_message = ?,
             created_at = ?, updated_at = ?, started_at = ?, completed_at = ?, deadline = ?,
             last_progress_at = ?, timeout_budget_ms = ?, source_path = ?, source_duration_seconds = ?,
             source_size_bytes = ?, options_json = ?, output_location = ?, epoch = ?, failure_notified = ?
         WHERE session_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if !ok {
		return fmt.Errorf("update job %s: %w", job.SessionID, sql.ErrNoRows)
	}
	return nil
}

// ListNonTerminal returns pending and processing jobs, oldest first.
func (s *Store) ListNonTerminal(ctx context.Context) ([]*Job, error) {
	return s.ListByStatus(ctx, StatusPending, StatusProcessing)
}

// ListByStatus returns jobs matching any of the provided statuses (all jobs
// when none are given), oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, session_id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

// ListForUser returns every job owned by userID, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = ? ORDER BY created_at DESC, session_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan user jobs: %w", err)
	}
	return jobs, nil
}

// CountActiveForUser counts the user's non-terminal jobs.
func (s *Store) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs WHERE user_id = ? AND status IN (?, ?)`,
		userID, StatusPending, StatusProcessing,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

// Stats returns the number of jobs per status. Every known status is present.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Remove deletes a terminal job. Non-terminal jobs are left untouched and
// Remove reports false.
func (s *Store) Remove(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.execAffected(
		ctx,
		`DELETE FROM jobs WHERE session_id = ? AND status IN (?, ?)`,
		sessionID, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	return ok, nil
}
