package main

import (
	"strings"
	"testing"
	"time"

	"clipforge/internal/api"
	"clipforge/internal/broadcast"
	"clipforge/internal/jobs"
	"clipforge/internal/progress"
)

func TestStatusLabel(t *testing.T) {
	tests := map[string]string{
		"processing":  "Processing",
		"failed":      "Failed",
		"":            "Unknown",
		"in_progress": "In Progress",
	}
	for input, want := range tests {
		if got := statusLabel(input); got != want {
			t.Fatalf("statusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		evt  broadcast.Event
		want string
	}{
		{
			name: "progress with snapshot",
			evt: broadcast.Event{Kind: broadcast.KindProgress, Epoch: 1, Snapshot: &progress.Snapshot{
				Percent: 42, OperationID: "op-1",
			}},
			want: "[epoch 1] op-1 42.0%",
		},
		{
			name: "progress without snapshot",
			evt:  broadcast.Event{Kind: broadcast.KindProgress, Progress: 10},
			want: "[epoch 0] 10.0%",
		},
		{
			name: "restart",
			evt:  broadcast.Event{Kind: broadcast.KindRestart, Epoch: 2, Message: "stalled"},
			want: "[epoch 2] restarted: stalled",
		},
		{
			name: "failure",
			evt:  broadcast.Event{Kind: broadcast.KindStatus, Status: jobs.StatusFailed, Message: "boom"},
			want: "[epoch 0] Failed: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.evt); !strings.HasPrefix(got, tt.want) {
				t.Fatalf("formatEvent = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestRenderJobList(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := renderJobList([]api.Job{
		{
			SessionID:  "s1",
			UserID:     "alice",
			Status:     "processing",
			Progress:   12,
			Restarts:   1,
			CreatedAt:  created.Format("2006-01-02T15:04:05.000Z07:00"),
			Operations: []jobs.Operation{{ID: "op-1"}, {ID: "op-2"}},
			Live:       &progress.Snapshot{Percent: 55},
		},
	})
	for _, want := range []string{"s1", "alice", "Processing", "55.0%", created.Local().Format(time.DateTime)} {
		requireContains(t, out, want)
	}
}

func TestBuildCountRowsFollowsStatusOrder(t *testing.T) {
	rows := buildCountRows(map[string]int{"failed": 2, "pending": 1, "completed": 0})
	if len(rows) != 2 || rows[0][0] != "Pending" || rows[1][0] != "Failed" {
		t.Fatalf("unexpected rows %v", rows)
	}
}
