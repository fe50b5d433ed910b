package progress_test

import (
	"testing"
	"time"

	"clipforge/internal/progress"
)

func TestTrackerClampsWithinEpoch(t *testing.T) {
	tracker := progress.NewTracker(0)

	inputs := []float64{10, 30, 20, 30, 55, 5}
	wantPercent := []float64{10, 30, 30, 30, 55, 55}
	wantAdvanced := []bool{true, true, false, false, true, false}

	for i, in := range inputs {
		snap, advanced := tracker.Observe(progress.Snapshot{Percent: in})
		if snap.Percent != wantPercent[i] || advanced != wantAdvanced[i] {
			t.Fatalf("step %d: got (%v, %v), want (%v, %v)", i, snap.Percent, advanced, wantPercent[i], wantAdvanced[i])
		}
		if snap.Epoch != 0 {
			t.Fatalf("step %d: expected epoch 0, got %d", i, snap.Epoch)
		}
	}
}

func TestNewTrackerStartsEpochFromZero(t *testing.T) {
	previous := progress.NewTracker(0)
	previous.Observe(progress.Snapshot{Percent: 80})

	tracker := progress.NewTracker(1)
	if _, ok := tracker.Last(); ok {
		t.Fatal("expected no snapshot before the first observation")
	}
	snap, advanced := tracker.Observe(progress.Snapshot{Percent: 0, Elapsed: time.Second})
	if snap.Percent != 0 || snap.Epoch != 1 || !advanced {
		t.Fatalf("unexpected first snapshot %+v advanced=%v", snap, advanced)
	}
}

func TestTrackerMonotoneAcrossOutOfOrderChunks(t *testing.T) {
	tracker := progress.NewTracker(3)
	chunks := []string{
		"out_time=00:00:10.000000\nprogress=continue",
		"out_time=00:00:30.000000\nprogress=continue",
		"out_time=00:00:20.000000\nprogress=continue",
		"out_time=00:00:40.000000\nprogress=continue",
	}
	prev := -1.0
	for _, chunk := range chunks {
		snap, ok := progress.Parse(chunk, time.Minute)
		if !ok {
			t.Fatalf("expected snapshot for %q", chunk)
		}
		observed, _ := tracker.Observe(snap)
		if observed.Percent < prev {
			t.Fatalf("percent regressed from %v to %v", prev, observed.Percent)
		}
		prev = observed.Percent
	}
	last, ok := tracker.Last()
	if !ok || last.Epoch != 3 {
		t.Fatalf("unexpected last snapshot %+v", last)
	}
}
