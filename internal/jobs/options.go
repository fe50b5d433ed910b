package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ExportType tags the variant of an Export.
type ExportType string

const (
	ExportCut             ExportType = "cut"
	ExportAnimatedPreview ExportType = "animated_preview"
	ExportStill           ExportType = "still"
	ExportLoop            ExportType = "loop"
)

// Valid reports whether the type is known.
func (t ExportType) Valid() bool {
	switch t {
	case ExportCut, ExportAnimatedPreview, ExportStill, ExportLoop:
		return true
	}
	return false
}

// CutSpec extracts [Start, End) seconds of the source.
type CutSpec struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Reencode bool    `json:"reencode,omitempty"`
}

// PreviewSpec renders an animated preview (GIF) from a window of the source.
type PreviewSpec struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	FPS      int     `json:"fps,omitempty"`
	Width    int     `json:"width,omitempty"`
}

// StillSpec grabs a single frame at At seconds.
type StillSpec struct {
	At     float64 `json:"at"`
	Width  int     `json:"width,omitempty"`
	Format string  `json:"format,omitempty"`
}

// LoopSpec repeats a window of the source Count times.
type LoopSpec struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Count    int     `json:"count"`
}

// Export is a tagged variant: Type selects which of the payload pointers is set.
type Export struct {
	Type    ExportType   `json:"type"`
	Cut     *CutSpec     `json:"cut,omitempty"`
	Preview *PreviewSpec `json:"animated_preview,omitempty"`
	Still   *StillSpec   `json:"still,omitempty"`
	Loop    *LoopSpec    `json:"loop,omitempty"`
}

// ProcessingOptions carries everything needed to rebuild a job's operations.
type ProcessingOptions struct {
	Exports []Export `json:"exports"`
}

// NewCut builds a cut export.
func NewCut(start, end float64) Export {
	return Export{Type: ExportCut, Cut: &CutSpec{Start: start, End: end}}
}

// NewPreview builds an animated preview export.
func NewPreview(start, duration float64, fps, width int) Export {
	return Export{Type: ExportAnimatedPreview, Preview: &PreviewSpec{Start: start, Duration: duration, FPS: fps, Width: width}}
}

// NewStill builds a still frame export.
func NewStill(at float64, width int) Export {
	return Export{Type: ExportStill, Still: &StillSpec{At: at, Width: width}}
}

// NewLoop builds a loop export.
func NewLoop(start, duration float64, count int) Export {
	return Export{Type: ExportLoop, Loop: &LoopSpec{Start: start, Duration: duration, Count: count}}
}

// UnmarshalJSON rejects payloads whose tag and populated variant disagree.
func (e *Export) UnmarshalJSON(data []byte) error {
	type plain Export
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	decoded.Type = ExportType(strings.ToLower(strings.TrimSpace(string(decoded.Type))))
	out := Export(decoded)
	if err := out.checkVariant(); err != nil {
		return err
	}
	*e = out
	return nil
}

func (e Export) checkVariant() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown export type %q", e.Type)
	}
	set := 0
	for _, present := range []bool{e.Cut != nil, e.Preview != nil, e.Still != nil, e.Loop != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("export %q must carry exactly one payload, got %d", e.Type, set)
	}
	var ok bool
	switch e.Type {
	case ExportCut:
		ok = e.Cut != nil
	case ExportAnimatedPreview:
		ok = e.Preview != nil
	case ExportStill:
		ok = e.Still != nil
	case ExportLoop:
		ok = e.Loop != nil
	}
	if !ok {
		return fmt.Errorf("export %q payload does not match its type", e.Type)
	}
	return nil
}

// Window returns the source range the export reads, in seconds.
func (e Export) Window() (start, duration float64) {
	switch e.Type {
	case ExportCut:
		if e.Cut != nil {
			return e.Cut.Start, e.Cut.End - e.Cut.Start
		}
	case ExportAnimatedPreview:
		if e.Preview != nil {
			return e.Preview.Start, e.Preview.Duration
		}
	case ExportStill:
		if e.Still != nil {
			return e.Still.At, 0
		}
	case ExportLoop:
		if e.Loop != nil {
			return e.Loop.Start, e.Loop.Duration
		}
	}
	return 0, 0
}

// Validate checks every export against the source duration (ignored when
// unknown, i.e. <= 0).
func (o ProcessingOptions) Validate(sourceSeconds float64) error {
	if len(o.Exports) == 0 {
		return errors.New("at least one export is required")
	}
	for idx, export := range o.Exports {
		if err := export.checkVariant(); err != nil {
			return fmt.Errorf("exports[%d]: %w", idx, err)
		}
		if err := export.validateBounds(sourceSeconds); err != nil {
			return fmt.Errorf("exports[%d] (%s): %w", idx, export.Type, err)
		}
	}
	return nil
}

func (e Export) validateBounds(sourceSeconds float64) error {
	start, duration := e.Window()
	if start < 0 {
		return errors.New("start must not be negative")
	}
	switch e.Type {
	case ExportStill:
		if e.Still.Format != "" && e.Still.Format != "jpg" && e.Still.Format != "png" {
			return fmt.Errorf("unsupported still format %q", e.Still.Format)
		}
	case ExportLoop:
		if e.Loop.Count < 1 {
			return errors.New("loop count must be at least 1")
		}
		fallthrough
	default:
		if duration <= 0 {
			return errors.New("window must have a positive duration")
		}
	}
	if sourceSeconds > 0 && start+duration > sourceSeconds {
		return fmt.Errorf("window %.3fs+%.3fs exceeds source duration %.3fs", start, duration, sourceSeconds)
	}
	return nil
}

// ExportTypes returns the distinct export types in sorted order.
func (o ProcessingOptions) ExportTypes() []ExportType {
	seen := make(map[ExportType]struct{}, len(o.Exports))
	types := make([]ExportType, 0, len(o.Exports))
	for _, export := range o.Exports {
		if _, ok := seen[export.Type]; ok {
			continue
		}
		seen[export.Type] = struct{}{}
		types = append(types, export.Type)
	}
	slices.Sort(types)
	return types
}

// Operations enumerates the job's work items in submission order.
func (o ProcessingOptions) Operations() []Operation {
	ops := make([]Operation, 0, len(o.Exports))
	for idx, export := range o.Exports {
		ops = append(ops, Operation{
			ID:     fmt.Sprintf("op-%02d-%s", idx+1, export.Type),
			Index:  idx,
			Type:   export.Type,
			Status: OperationPending,
			Export: export,
		})
	}
	return ops
}

// Clone deep-copies the options.
func (o ProcessingOptions) Clone() ProcessingOptions {
	if o.Exports == nil {
		return ProcessingOptions{}
	}
	out := ProcessingOptions{Exports: make([]Export, len(o.Exports))}
	for i, export := range o.Exports {
		cp := Export{Type: export.Type}
		if export.Cut != nil {
			v := *export.Cut
			cp.Cut = &v
		}
		if export.Preview != nil {
			v := *export.Preview
			cp.Preview = &v
		}
		if export.Still != nil {
			v := *export.Still
			cp.Still = &v
		}
		if export.Loop != nil {
			v := *export.Loop
			cp.Loop = &v
		}
		out.Exports[i] = cp
	}
	return out
}

// MarshalOptions encodes options for storage.
func MarshalOptions(o ProcessingOptions) (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal processing options: %w", err)
	}
	return string(data), nil
}

// UnmarshalOptions decodes stored options.
func UnmarshalOptions(raw string) (ProcessingOptions, error) {
	var o ProcessingOptions
	if strings.TrimSpace(raw) == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return ProcessingOptions{}, fmt.Errorf("unmarshal processing options: %w", err)
	}
	return o, nil
}
