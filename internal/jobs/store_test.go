package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clipforge/internal/jobs"
	"clipforge/internal/testsupport"
)

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob("sess-1", "user-1",
		jobs.NewCut(0, 10),
		jobs.NewPreview(5, 3, 12, 320),
		jobs.NewStill(1.5, 640),
		jobs.NewLoop(2, 2, 3),
	)
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fetched, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected job")
	}
	if diff := cmp.Diff(job.Options, fetched.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(job.Operations, fetched.Operations); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
	if fetched.Status != jobs.StatusPending || fetched.TimeoutBudget != job.TimeoutBudget {
		t.Fatalf("unexpected job: %+v", fetched)
	}
	if fetched.StartedAt != nil || fetched.Deadline != nil {
		t.Fatalf("expected no timing on pending job: %+v", fetched)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job, err := store.Get(context.Background(), "missing")
	if err != nil || job != nil {
		t.Fatalf("expected nil, nil; got %v, %v", job, err)
	}
}

func TestCreateRejectsDuplicateSession(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustCreateJob(t, store, "dup", "user-1")
	err := store.Create(context.Background(), testsupport.NewJob("dup", "user-2"))
	if !errors.Is(err, jobs.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestBeginAttemptAndProgressAreEpochGuarded(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustCreateJob(t, store, "sess", "user")

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.BeginAttempt(ctx, "sess", 0, start, time.Minute); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	job := testsupport.MustGetJob(t, store, "sess")
	if job.Status != jobs.StatusProcessing || job.StartedAt == nil || !job.StartedAt.Equal(start) {
		t.Fatalf("unexpected job after begin: %+v", job)
	}
	if job.Deadline == nil || !job.Deadline.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected deadline: %v", job.Deadline)
	}

	if ok, err := store.UpdateProgress(ctx, "sess", 0, 40, start.Add(time.Second)); err != nil || !ok {
		t.Fatalf("UpdateProgress: %v %v", ok, err)
	}
	// Lower value never regresses the stored percentage.
	if ok, err := store.UpdateProgress(ctx, "sess", 0, 25, start.Add(2*time.Second)); err != nil || !ok {
		t.Fatalf("UpdateProgress lower: %v %v", ok, err)
	}
	job = testsupport.MustGetJob(t, store, "sess")
	if job.Progress != 40 {
		t.Fatalf("expected progress 40, got %v", job.Progress)
	}
	if job.LastProgressAt == nil || !job.LastProgressAt.Equal(start.Add(time.Second)) {
		t.Fatalf("expected last progress at first advance, got %v", job.LastProgressAt)
	}

	// Restart to epoch 1 resets progress; old-epoch writes are refused.
	restart := start.Add(time.Minute)
	if err := store.BeginAttempt(ctx, "sess", 1, restart, time.Minute); err != nil {
		t.Fatalf("BeginAttempt epoch 1: %v", err)
	}
	if ok, err := store.UpdateProgress(ctx, "sess", 0, 90, restart); err != nil || ok {
		t.Fatalf("expected stale progress write to be ignored: %v %v", ok, err)
	}
	if err := store.Complete(ctx, "sess", 0, "/out", restart); !errors.Is(err, jobs.ErrStaleEpoch) {
		t.Fatalf("expected ErrStaleEpoch for old epoch completion, got %v", err)
	}
	if err := store.BeginAttempt(ctx, "sess", 0, restart, time.Minute); !errors.Is(err, jobs.ErrStaleEpoch) {
		t.Fatalf("expected ErrStaleEpoch when going back an epoch, got %v", err)
	}
	job = testsupport.MustGetJob(t, store, "sess")
	if job.Epoch != 1 || job.Progress != 0 || job.LastProgressAt != nil {
		t.Fatalf("unexpected job after restart: %+v", job)
	}
}

func TestCompleteAndFailInvariants(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	testsupport.MustCreateJob(t, store, "ok", "user")
	testsupport.MustCreateJob(t, store, "bad", "user")
	for _, id := range []string{"ok", "bad"} {
		if err := store.BeginAttempt(ctx, id, 0, now, time.Minute); err != nil {
			t.Fatalf("BeginAttempt %s: %v", id, err)
		}
	}

	if err := store.Complete(ctx, "ok", 0, "", now); err == nil {
		t.Fatal("expected completion without output to fail")
	}
	if err := store.Complete(ctx, "ok", 0, "/outputs/ok", now); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := store.Fail(ctx, "bad", 0, "", now); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := store.Fail(ctx, "ok", 0, "late failure", now); !errors.Is(err, jobs.ErrStaleEpoch) {
		t.Fatalf("expected terminal job to refuse failure, got %v", err)
	}

	ok := testsupport.MustGetJob(t, store, "ok")
	if ok.Status != jobs.StatusCompleted || ok.OutputLocation == "" || ok.Progress != 100 {
		t.Fatalf("unexpected completed job: %+v", ok)
	}
	bad := testsupport.MustGetJob(t, store, "bad")
	if bad.Status != jobs.StatusFailed || bad.ErrorMessage == "" || bad.CompletedAt == nil {
		t.Fatalf("unexpected failed job: %+v", bad)
	}
}

func TestMarkFailureNotifiedOnlyOnce(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustCreateJob(t, store, "sess", "user")

	first, err := store.MarkFailureNotified(ctx, "sess")
	if err != nil || !first {
		t.Fatalf("expected first mark to win: %v %v", first, err)
	}
	for i := 0; i < 3; i++ {
		again, err := store.MarkFailureNotified(ctx, "sess")
		if err != nil || again {
			t.Fatalf("expected repeat mark to lose: %v %v", again, err)
		}
	}
}

func TestListingAndCounts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now().UTC()

	testsupport.MustCreateJob(t, store, "a", "alice")
	testsupport.MustCreateJob(t, store, "b", "alice")
	testsupport.MustCreateJob(t, store, "c", "bob")
	if err := store.BeginAttempt(ctx, "b", 0, now, time.Minute); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if err := store.BeginAttempt(ctx, "c", 0, now, time.Minute); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if err := store.Fail(ctx, "c", 0, "boom", now); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	count, err := store.CountActiveForUser(ctx, "alice")
	if err != nil || count != 2 {
		t.Fatalf("expected 2 active for alice, got %d (%v)", count, err)
	}
	count, err = store.CountActiveForUser(ctx, "bob")
	if err != nil || count != 0 {
		t.Fatalf("expected 0 active for bob, got %d (%v)", count, err)
	}

	active, err := store.ListNonTerminal(ctx)
	if err != nil {
		t.Fatalf("ListNonTerminal: %v", err)
	}
	ids := make([]string, 0, len(active))
	for _, job := range active {
		ids = append(ids, job.SessionID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Fatalf("non-terminal mismatch (-want +got):\n%s", diff)
	}

	userJobs, err := store.ListForUser(ctx, "alice")
	if err != nil || len(userJobs) != 2 {
		t.Fatalf("ListForUser: %d %v", len(userJobs), err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[jobs.Status]int{
		jobs.StatusPending:    1,
		jobs.StatusProcessing: 1,
		jobs.StatusCompleted:  0,
		jobs.StatusFailed:     1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	if removed, err := store.Remove(ctx, "a"); err != nil || removed {
		t.Fatalf("expected non-terminal job to be kept: %v %v", removed, err)
	}
	if removed, err := store.Remove(ctx, "c"); err != nil || !removed {
		t.Fatalf("expected terminal job removal: %v %v", removed, err)
	}
}

func TestUpdatePersistsAllFields(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, "sess", "user")

	job.UserEmail = "new@example.com"
	job.SourceSizeBytes = 3 << 30
	job.FailureNotified = true
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := testsupport.MustGetJob(t, store, "sess")
	if got.UserEmail != "new@example.com" || got.SourceSizeBytes != 3<<30 || !got.FailureNotified {
		t.Fatalf("update not persisted: %+v", got)
	}

	missing := testsupport.NewJob("missing", "user")
	if err := store.Update(ctx, missing); err == nil {
		t.Fatal("expected error updating missing job")
	}
}

func TestReopenChecksSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustCreateJob(t, store, "persisted", "user")
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	testsupport.MustGetJob(t, reopened, "persisted")
}
