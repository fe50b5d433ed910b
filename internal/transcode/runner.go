package transcode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clipforge/internal/jobs"
	"clipforge/internal/services"
)

// Request describes one operation run.
type Request struct {
	SessionID string
	Epoch     int
	Operation jobs.Operation
	Input     string
	Output    string
}

// Total is the media duration the operation produces, used to turn elapsed
// output time into a percentage.
func (r Request) Total() time.Duration {
	export := r.Operation.Export
	_, duration := export.Window()
	switch export.Type {
	case jobs.ExportStill:
		return time.Second
	case jobs.ExportLoop:
		if export.Loop != nil && export.Loop.Count > 1 {
			duration *= float64(export.Loop.Count)
		}
	}
	if duration <= 0 {
		return 0
	}
	return time.Duration(duration * float64(time.Second))
}

// Runner executes a single operation. onLine receives every output line as
// it is produced. Run must return promptly once ctx is done, with an error
// that wraps context.Cause(ctx).
type Runner interface {
	Run(ctx context.Context, req Request, onLine func(string)) error
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the FFmpeg runner.
type Option func(*FFmpeg)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *FFmpeg) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// FFmpeg runs operations with the ffmpeg CLI.
type FFmpeg struct {
	binary string
	exec   Executor
}

// NewFFmpeg constructs an ffmpeg-backed Runner.
func NewFFmpeg(binary string, killGrace time.Duration, opts ...Option) (*FFmpeg, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	runner := &FFmpeg{
		binary: binary,
		exec:   commandExecutor{grace: killGrace},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// Run executes the operation. On a non-zero exit the returned error carries
// the last diagnostic lines ffmpeg printed.
func (f *FFmpeg) Run(ctx context.Context, req Request, onLine func(string)) error {
	if strings.TrimSpace(req.Input) == "" {
		return services.Wrap(services.ErrValidation, "ffmpeg", req.Operation.ID, "input path required", nil)
	}
	if strings.TrimSpace(req.Output) == "" {
		return services.Wrap(services.ErrValidation, "ffmpeg", req.Operation.ID, "output path required", nil)
	}
	args, err := BuildArgs(req)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ffmpeg", req.Operation.ID, "build arguments", err)
	}

	tail := newLineTail(5)
	runErr := f.exec.Run(ctx, f.binary, args, func(line string) {
		if !isProgressLine(line) {
			tail.add(line)
		}
		if onLine != nil {
			onLine(line)
		}
	})
	if runErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", req.Operation.ID, context.Cause(ctx))
	}
	detail := tail.String()
	if detail == "" {
		detail = runErr.Error()
	}
	return services.Wrap(services.ErrExternalTool, "ffmpeg", req.Operation.ID, detail, runErr)
}

// OutputPath returns the artifact path of op inside dir.
func OutputPath(dir string, op jobs.Operation) string {
	return filepath.Join(dir, op.ID+"."+extension(op.Export))
}

func extension(export jobs.Export) string {
	switch export.Type {
	case jobs.ExportAnimatedPreview:
		return "gif"
	case jobs.ExportStill:
		if export.Still != nil && export.Still.Format == "png" {
			return "png"
		}
		return "jpg"
	default:
		return "mp4"
	}
}

func isProgressLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	key, _, ok := strings.Cut(trimmed, "=")
	return ok && !strings.ContainsAny(key, " \t")
}

type lineTail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}
