// Package estimate sizes job deadlines from the work a job carries.
package estimate

import (
	"math"
	"slices"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
)

// maxBudgetSeconds is the largest budget time.Duration can represent.
var maxBudgetSeconds = time.Duration(math.MaxInt64).Seconds()

// Estimator computes bounded processing budgets. It holds no mutable state;
// identical inputs always produce identical budgets.
type Estimator struct {
	perOperation  float64
	overhead      float64
	safety        float64
	sizeThreshold float64
	sizeSurcharge float64
	floor         time.Duration
	ceiling       time.Duration
	multipliers   map[jobs.ExportType]float64
}

// New builds an Estimator from the estimator config section.
func New(cfg config.Estimator) *Estimator {
	multipliers := make(map[jobs.ExportType]float64, len(cfg.TypeMultipliers))
	for key, value := range cfg.TypeMultipliers {
		multipliers[jobs.ExportType(strings.ToLower(strings.TrimSpace(key)))] = value
	}
	safety := cfg.SafetyFactor
	if safety < 1 {
		safety = 1
	}
	return &Estimator{
		perOperation:  cfg.PerOperationSeconds,
		overhead:      float64(cfg.OverheadSeconds),
		safety:        safety,
		sizeThreshold: cfg.SizeThresholdGB,
		sizeSurcharge: cfg.SizeSurchargePerGB,
		floor:         time.Duration(cfg.FloorSeconds) * time.Second,
		ceiling:       time.Duration(cfg.CeilingSeconds) * time.Second,
		multipliers:   multipliers,
	}
}

// Input describes the work to be estimated.
type Input struct {
	Operations      int
	ExportTypes     []jobs.ExportType
	DurationSeconds float64
	SizeGB          float64
}

// Breakdown records how a budget was derived, for logging.
type Breakdown struct {
	OperationSeconds float64
	MediaSeconds     float64
	SizeSeconds      float64
	Score            float64
	Budget           time.Duration
	Clamped          string
}

// EstimateDeadline returns the processing budget for a job.
func (e *Estimator) EstimateDeadline(opCount int, exportTypes []jobs.ExportType, durationSeconds, sizeGB float64) time.Duration {
	return e.Explain(Input{
		Operations:      opCount,
		ExportTypes:     exportTypes,
		DurationSeconds: durationSeconds,
		SizeGB:          sizeGB,
	}).Budget
}

// ForJob estimates the budget for a job's operations and source facts.
func (e *Estimator) ForJob(job *jobs.Job) Breakdown {
	return e.Explain(Input{
		Operations:      len(job.Operations),
		ExportTypes:     job.Options.ExportTypes(),
		DurationSeconds: job.SourceDurationSeconds,
		SizeGB:          job.SourceSizeGB(),
	})
}

// Explain computes the budget and the contribution of each term.
func (e *Estimator) Explain(in Input) Breakdown {
	var b Breakdown
	ops := max(in.Operations, 0)
	duration := sanitize(in.DurationSeconds)
	size := sanitize(in.SizeGB)

	b.OperationSeconds = e.perOperation * float64(ops)

	types := slices.Clone(in.ExportTypes)
	slices.Sort(types)
	types = slices.Compact(types)
	for _, t := range types {
		b.MediaSeconds += e.multipliers[t] * duration
	}

	if size > e.sizeThreshold {
		b.SizeSeconds = (size - e.sizeThreshold) * e.sizeSurcharge
	}

	b.Score = b.OperationSeconds + b.MediaSeconds + b.SizeSeconds
	seconds := b.Score*e.safety + e.overhead

	// Clamp in float seconds: huge scores overflow time.Duration.
	switch {
	case math.IsNaN(seconds) || seconds < e.floor.Seconds():
		b.Budget = e.floor
		b.Clamped = "floor"
	case e.ceiling > 0 && seconds > e.ceiling.Seconds():
		b.Budget = e.ceiling
		b.Clamped = "ceiling"
	case seconds >= maxBudgetSeconds:
		b.Budget = time.Duration(math.MaxInt64)
		b.Clamped = "max"
	default:
		b.Budget = time.Duration(math.Round(seconds * float64(time.Second)))
	}
	return b
}

// Ceiling is the absolute upper bound of any budget. The health monitor uses
// it as the idle cutoff after which a job is considered dead.
func (e *Estimator) Ceiling() time.Duration {
	return e.ceiling
}

// Floor is the lower bound of any budget.
func (e *Estimator) Floor() time.Duration {
	return e.floor
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
