package api

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/progress"
)

func TestFromJobFormatsTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	started := created.Add(time.Minute)
	job := &jobs.Job{
		SessionID:     "s1",
		VideoID:       "v1",
		UserID:        "alice",
		Status:        jobs.StatusProcessing,
		Progress:      42.5,
		CreatedAt:     created,
		StartedAt:     &started,
		TimeoutBudget: 90 * time.Second,
		Epoch:         1,
	}

	got := FromJob(job)
	want := Job{
		SessionID:            "s1",
		VideoID:              "v1",
		UserID:               "alice",
		Status:               "processing",
		Progress:             42.5,
		CreatedAt:            "2026-03-01T11:00:00.000Z",
		StartedAt:            "2026-03-01T11:01:00.000Z",
		TimeoutBudgetSeconds: 90,
		Restarts:             1,
		Operations:           []jobs.Operation{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromJob mismatch (-want +got):\n%s", diff)
	}
	if parsed, ok := ParseTime(got.StartedAt); !ok || !parsed.Equal(started) {
		t.Fatalf("ParseTime round trip failed: %v %v", parsed, ok)
	}
}

func TestFromJobStatusCopiesLiveSnapshot(t *testing.T) {
	snap := &progress.Snapshot{Percent: 30, Epoch: 2}
	got := FromJobStatus(&jobs.Job{SessionID: "s1"}, true, snap)
	if !got.Active || got.Live == nil || got.Live.Percent != 30 {
		t.Fatalf("unexpected live overlay %+v", got)
	}
	snap.Percent = 99
	if got.Live.Percent != 30 {
		t.Fatal("live snapshot must be copied")
	}
}

func TestFromSweepReport(t *testing.T) {
	report := health.SweepReport{
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1234567 * time.Microsecond,
		Examined:  3,
		Restarted: []string{"a"},
		Failed:    []string{"b"},
	}
	got := FromSweepReport(report)
	want := SweepReport{
		StartedAt: "2026-03-01T12:00:00.000Z",
		Duration:  "1.235s",
		Examined:  3,
		Restarted: []string{"a"},
		Failed:    []string{"b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromSweepReport mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitRequestToJob(t *testing.T) {
	req := SubmitRequest{
		VideoID:               "v1",
		UserID:                "alice",
		SourcePath:            "/media/a.mp4",
		SourceDurationSeconds: 60,
		Options:               jobs.ProcessingOptions{Exports: []jobs.Export{jobs.NewCut(0, 10)}},
	}
	job := req.ToJob()
	if job.UserID != "alice" || job.SourcePath != "/media/a.mp4" || len(job.Options.Exports) != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
}
