package testsupport

import (
	"context"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob builds an unsaved pending job with a single cut of a 60s source.
func NewJob(sessionID, userID string, exports ...jobs.Export) *jobs.Job {
	if len(exports) == 0 {
		exports = []jobs.Export{jobs.NewCut(0, 60)}
	}
	opts := jobs.ProcessingOptions{Exports: exports}
	return &jobs.Job{
		SessionID:             sessionID,
		VideoID:               "video-" + sessionID,
		UserID:                userID,
		UserEmail:             userID + "@example.com",
		Status:                jobs.StatusPending,
		SourcePath:            "/media/" + sessionID + ".mp4",
		SourceDurationSeconds: 60,
		SourceSizeBytes:       50 << 20,
		Options:               opts,
		Operations:            opts.Operations(),
		TimeoutBudget:         10 * time.Minute,
	}
}

// MustCreateJob persists a job built by NewJob.
func MustCreateJob(t testing.TB, store *jobs.Store, sessionID, userID string, exports ...jobs.Export) *jobs.Job {
	t.Helper()

	job := NewJob(sessionID, userID, exports...)
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// MustGetJob fetches a job and fails the test when it is missing.
func MustGetJob(t testing.TB, store *jobs.Store, sessionID string) *jobs.Job {
	t.Helper()

	job, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s not found", sessionID)
	}
	return job
}
