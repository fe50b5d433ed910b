package estimate_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clipforge/internal/config"
	"clipforge/internal/estimate"
	"clipforge/internal/jobs"
	"clipforge/internal/testsupport"
)

func newEstimator() *estimate.Estimator {
	return estimate.New(config.Default().Estimator)
}

func TestEstimateDeadlineFormula(t *testing.T) {
	e := newEstimator()
	// 2 ops * 20s + (cut 0.5 + still 0.05) * 600s = 40 + 330 = 370
	// 370 * 2.0 + 15 = 755s
	got := e.EstimateDeadline(2, []jobs.ExportType{jobs.ExportStill, jobs.ExportCut}, 600, 1)
	if got != 755*time.Second {
		t.Fatalf("unexpected budget %s", got)
	}
}

func TestEstimateDeadlineSizeSurcharge(t *testing.T) {
	e := newEstimator()
	small := e.Explain(estimate.Input{Operations: 1, ExportTypes: []jobs.ExportType{jobs.ExportCut}, DurationSeconds: 300, SizeGB: 2})
	large := e.Explain(estimate.Input{Operations: 1, ExportTypes: []jobs.ExportType{jobs.ExportCut}, DurationSeconds: 300, SizeGB: 5})
	if small.SizeSeconds != 0 {
		t.Fatalf("expected no surcharge at threshold, got %v", small.SizeSeconds)
	}
	if large.SizeSeconds != 90 {
		t.Fatalf("expected 3GB * 30s surcharge, got %v", large.SizeSeconds)
	}
	if large.Budget-small.Budget != 180*time.Second {
		t.Fatalf("expected surcharge scaled by safety factor, got %s", large.Budget-small.Budget)
	}
}

func TestEstimateDeadlineClamps(t *testing.T) {
	e := newEstimator()
	tiny := e.Explain(estimate.Input{Operations: 1, ExportTypes: []jobs.ExportType{jobs.ExportStill}, DurationSeconds: 1})
	if tiny.Budget != e.Floor() || tiny.Clamped != "floor" {
		t.Fatalf("expected floor clamp, got %+v", tiny)
	}
	huge := e.Explain(estimate.Input{Operations: 10, ExportTypes: []jobs.ExportType{jobs.ExportAnimatedPreview}, DurationSeconds: 36000, SizeGB: 50})
	if huge.Budget != e.Ceiling() || huge.Clamped != "ceiling" {
		t.Fatalf("expected ceiling clamp, got %+v", huge)
	}
	if e.Ceiling() != 2*time.Hour {
		t.Fatalf("unexpected ceiling %s", e.Ceiling())
	}
}

func TestEstimateDeadlinePathologicalInputsHitCeiling(t *testing.T) {
	e := newEstimator()
	tests := []struct {
		name     string
		types    []jobs.ExportType
		duration float64
		sizeGB   float64
	}{
		{name: "long source", types: []jobs.ExportType{jobs.ExportCut, jobs.ExportLoop}, duration: 1e12},
		{name: "huge file", types: []jobs.ExportType{jobs.ExportCut}, sizeGB: 1e12},
		{name: "both", types: []jobs.ExportType{jobs.ExportAnimatedPreview}, duration: 1e12, sizeGB: 1e12},
		{name: "near float max", types: []jobs.ExportType{jobs.ExportCut}, duration: 1e307},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EstimateDeadline(1, tt.types, tt.duration, tt.sizeGB); got != e.Ceiling() {
				t.Fatalf("expected ceiling %s, got %s", e.Ceiling(), got)
			}
		})
	}
}

func TestEstimateDeadlineWithoutCeilingSaturates(t *testing.T) {
	cfg := config.Default().Estimator
	cfg.CeilingSeconds = 0
	e := estimate.New(cfg)
	got := e.Explain(estimate.Input{Operations: 1, ExportTypes: []jobs.ExportType{jobs.ExportCut}, DurationSeconds: 1e12})
	if got.Budget <= e.Floor() || got.Clamped != "max" {
		t.Fatalf("expected saturated budget, got %+v", got)
	}
}

func TestEstimateDeadlineIsDeterministic(t *testing.T) {
	e := newEstimator()
	in := estimate.Input{
		Operations:      3,
		ExportTypes:     []jobs.ExportType{jobs.ExportLoop, jobs.ExportCut, jobs.ExportAnimatedPreview, jobs.ExportCut},
		DurationSeconds: 123.4,
		SizeGB:          2.7,
	}
	reordered := in
	reordered.ExportTypes = []jobs.ExportType{jobs.ExportAnimatedPreview, jobs.ExportCut, jobs.ExportLoop}

	first := e.Explain(in)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, e.Explain(in)); diff != "" {
			t.Fatalf("estimate changed between calls (-first +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff(first, e.Explain(reordered)); diff != "" {
		t.Fatalf("estimate depends on type order (-first +got):\n%s", diff)
	}
}

func TestEstimateDeadlineIgnoresInvalidInputs(t *testing.T) {
	e := newEstimator()
	got := e.Explain(estimate.Input{Operations: -2, ExportTypes: []jobs.ExportType{"bogus"}, DurationSeconds: -5, SizeGB: -1})
	if got.Score != 0 || got.Budget != e.Floor() {
		t.Fatalf("expected zero score at floor, got %+v", got)
	}
}

func TestForJobUsesJobFacts(t *testing.T) {
	e := newEstimator()
	job := testsupport.NewJob("s1", "u1", jobs.NewCut(0, 30), jobs.NewPreview(0, 5, 10, 320))
	job.SourceDurationSeconds = 600
	got := e.ForJob(job)
	want := e.EstimateDeadline(2, []jobs.ExportType{jobs.ExportCut, jobs.ExportAnimatedPreview}, 600, job.SourceSizeGB())
	if got.Budget != want {
		t.Fatalf("ForJob budget %s, want %s", got.Budget, want)
	}
}
