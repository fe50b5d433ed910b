package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipforge/internal/transcode"
)

// Outcome selects how FakeRunner finishes an operation.
type Outcome int

const (
	// Complete emits every progress fraction and writes the output file.
	Complete Outcome = iota
	// Block emits the first fraction and waits for ctx to end.
	Block
	// Fail emits the first fraction and returns FailErr.
	Fail
	// Stall emits nothing and waits for ctx to end.
	Stall
	// Hold emits every fraction and then waits for ctx to end.
	Hold
)

// Behavior decides the outcome for a request.
type Behavior func(req transcode.Request) Outcome

// FakeRunner is a transcode.Runner that writes ffmpeg-style progress lines
// without spawning processes.
type FakeRunner struct {
	Fractions []float64
	Behavior  Behavior
	FailErr   error
	// Started receives every request as it begins. It is buffered; sends
	// never block the runner.
	Started chan transcode.Request

	mu       sync.Mutex
	requests []transcode.Request
}

// NewFakeRunner returns a runner that completes every operation in three
// progress steps.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Fractions: []float64{0.25, 0.5, 1.0},
		Started:   make(chan transcode.Request, 64),
	}
}

// Run implements transcode.Runner.
func (f *FakeRunner) Run(ctx context.Context, req transcode.Request, onLine func(string)) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	select {
	case f.Started <- req:
	default:
	}

	outcome := Complete
	if f.Behavior != nil {
		outcome = f.Behavior(req)
	}
	fractions := f.Fractions
	if len(fractions) == 0 {
		fractions = []float64{1.0}
	}
	total := req.Total()

	switch outcome {
	case Stall:
		<-ctx.Done()
		return fmt.Errorf("%s: %w", req.Operation.ID, context.Cause(ctx))
	case Block:
		emit(onLine, total, fractions[0])
		<-ctx.Done()
		return fmt.Errorf("%s: %w", req.Operation.ID, context.Cause(ctx))
	case Hold:
		for _, fraction := range fractions {
			emit(onLine, total, fraction)
		}
		<-ctx.Done()
		return fmt.Errorf("%s: %w", req.Operation.ID, context.Cause(ctx))
	case Fail:
		emit(onLine, total, fractions[0])
		if f.FailErr != nil {
			return f.FailErr
		}
		return errors.New("fake runner failure")
	}

	for _, fraction := range fractions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", req.Operation.ID, context.Cause(ctx))
		}
		emit(onLine, total, fraction)
	}
	onLine("progress=end")
	if req.Output != "" {
		if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(req.Output, []byte("fake output"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Requests returns every request seen so far.
func (f *FakeRunner) Requests() []transcode.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcode.Request(nil), f.requests...)
}

// WaitStarted blocks until a request starts or the timeout elapses.
func (f *FakeRunner) WaitStarted(t testing.TB, timeout time.Duration) transcode.Request {
	t.Helper()
	select {
	case req := <-f.Started:
		return req
	case <-time.After(timeout):
		t.Fatalf("runner did not start within %s", timeout)
		return transcode.Request{}
	}
}

func emit(onLine func(string), total time.Duration, fraction float64) {
	elapsed := time.Duration(float64(total) * fraction)
	onLine(fmt.Sprintf("out_time_us=%d", elapsed.Microseconds()))
	onLine(fmt.Sprintf("out_time=%s", formatClock(elapsed)))
	onLine("speed=1x")
	onLine("progress=continue")
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := d.Seconds()
	return fmt.Sprintf("%02d:%02d:%09.6f", h, m, s)
}
