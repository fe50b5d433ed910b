package progress

import (
	"fmt"
	"strings"
	"time"
)

// MinSpeed bounds the divisor used for ETA so a stalled encoder does not
// produce an unbounded estimate.
const MinSpeed = 0.1

// Snapshot is the latest known progress of a running operation or job.
type Snapshot struct {
	Elapsed     time.Duration `json:"elapsed"`
	Total       time.Duration `json:"total"`
	Speed       float64       `json:"speed"`
	ETA         time.Duration `json:"eta"`
	Percent     float64       `json:"percent"`
	Done        bool          `json:"done,omitempty"`
	Epoch       int           `json:"epoch"`
	OperationID string        `json:"operation_id,omitempty"`
}

// Message renders a short human readable progress line.
func (s Snapshot) Message() string {
	base := fmt.Sprintf("%.1f%%", s.Percent)
	extras := make([]string, 0, 2)
	if eta := formatETA(s.ETA); eta != "" && s.Percent < 100 {
		extras = append(extras, "ETA "+eta)
	}
	if s.Speed > 0 {
		extras = append(extras, fmt.Sprintf("@ %.2fx", s.Speed))
	}
	if len(extras) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

// Overall folds the percentage of operation index (0-based) into a job-wide
// percentage, assuming operations carry equal weight.
func Overall(index, count int, operationPercent float64) float64 {
	if count <= 0 {
		return clampPercent(operationPercent)
	}
	if index < 0 {
		index = 0
	}
	if index >= count {
		return 100
	}
	return clampPercent((float64(index)*100 + clampPercent(operationPercent)) / float64(count))
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
