package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "session_id, video_id, user_id, user_email, status, progress, error_message, created_at, updated_at, started_at, completed_at, deadline, last_progress_at, timeout_budget_ms, source_path, source_duration_seconds, source_size_bytes, options_json, output_location, epoch, failure_notified"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		sessionID       string
		videoID         string
		userID          string
		userEmail       sql.NullString
		statusStr       string
		progress        sql.NullFloat64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		deadlineRaw     sql.NullString
		lastProgressRaw sql.NullString
		budgetMillis    sql.NullInt64
		sourcePath      sql.NullString
		sourceDuration  sql.NullFloat64
		sourceSize      sql.NullInt64
		optionsJSON     sql.NullString
		outputLocation  sql.NullString
		epoch           sql.NullInt64
		failureNotified sql.NullInt64
	)

	if err := scanner.Scan(
		&sessionID,
		&videoID,
		&userID,
		&userEmail,
		&statusStr,
		&progress,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&deadlineRaw,
		&lastProgressRaw,
		&budgetMillis,
		&sourcePath,
		&sourceDuration,
		&sourceSize,
		&optionsJSON,
		&outputLocation,
		&epoch,
		&failureNotified,
	); err != nil {
		return nil, err
	}

	options, err := UnmarshalOptions(optionsJSON.String)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", sessionID, err)
	}

	job := &Job{
		SessionID:             sessionID,
		VideoID:               videoID,
		UserID:                userID,
		UserEmail:             userEmail.String,
		Status:                Status(statusStr),
		Progress:              progress.Float64,
		ErrorMessage:          errorMessage.String,
		TimeoutBudget:         time.Duration(budgetMillis.Int64) * time.Millisecond,
		SourcePath:            sourcePath.String,
		SourceDurationSeconds: sourceDuration.Float64,
		SourceSizeBytes:       sourceSize.Int64,
		Options:               options,
		Operations:            options.Operations(),
		OutputLocation:        outputLocation.String,
		Epoch:                 int(epoch.Int64),
		FailureNotified:       failureNotified.Valid && failureNotified.Int64 != 0,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.Deadline = parseNullableTime(deadlineRaw)
	job.LastProgressAt = parseNullableTime(lastProgressRaw)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
