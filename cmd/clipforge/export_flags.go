package main

import (
	"fmt"
	"strconv"
	"strings"

	"clipforge/internal/jobs"
)

// exportFlags collects the repeatable --cut/--preview/--still/--loop values.
type exportFlags struct {
	cuts     []string
	previews []string
	stills   []string
	loops    []string
}

func (f exportFlags) empty() bool {
	return len(f.cuts)+len(f.previews)+len(f.stills)+len(f.loops) == 0
}

// exports parses every flag value in flag order: cuts, previews, stills, loops.
func (f exportFlags) exports() ([]jobs.Export, error) {
	var out []jobs.Export
	for _, raw := range f.cuts {
		v, err := parseNumbers("cut", raw, 2, 2)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.NewCut(v[0], v[1]))
	}
	for _, raw := range f.previews {
		v, err := parseNumbers("preview", raw, 2, 4)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.NewPreview(v[0], v[1], int(at(v, 2)), int(at(v, 3))))
	}
	for _, raw := range f.stills {
		v, err := parseNumbers("still", raw, 1, 2)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.NewStill(v[0], int(at(v, 1))))
	}
	for _, raw := range f.loops {
		v, err := parseNumbers("loop", raw, 3, 3)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.NewLoop(v[0], v[1], int(v[2])))
	}
	return out, nil
}

// parseNumbers splits a colon separated list of numbers, e.g. "1.5:10".
func parseNumbers(kind, raw string, minParts, maxParts int) ([]float64, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < minParts || len(parts) > maxParts {
		return nil, fmt.Errorf("invalid --%s %q: %s", kind, raw, exportUsage[kind])
	}
	values := make([]float64, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %s", kind, raw, exportUsage[kind])
		}
		values[i] = value
	}
	return values, nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

var exportUsage = map[string]string{
	"cut":     "expected START:END seconds",
	"preview": "expected START:DURATION[:FPS[:WIDTH]]",
	"still":   "expected AT[:WIDTH]",
	"loop":    "expected START:DURATION:COUNT",
}
