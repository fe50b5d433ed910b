package transcode_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clipforge/internal/jobs"
	"clipforge/internal/transcode"
)

func request(export jobs.Export) transcode.Request {
	ops := jobs.ProcessingOptions{Exports: []jobs.Export{export}}.Operations()
	return transcode.Request{
		SessionID: "s1",
		Operation: ops[0],
		Input:     "/media/in.mp4",
		Output:    transcode.OutputPath("/out/s1", ops[0]),
	}
}

func TestBuildArgsCut(t *testing.T) {
	args, err := transcode.BuildArgs(request(jobs.NewCut(1.5, 10)))
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-progress", "pipe:1", "-nostats",
		"-ss", "1.500", "-to", "10.000", "-i", "/media/in.mp4",
		"-c", "copy", "-avoid_negative_ts", "make_zero",
		"/out/s1/op-01-cut.mp4",
	}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgsPerType(t *testing.T) {
	still := jobs.NewStill(3, 640)
	still.Still.Format = "png"
	tests := []struct {
		name     string
		export   jobs.Export
		contains []string
		output   string
	}{
		{"reencoded cut", jobs.Export{Type: jobs.ExportCut, Cut: &jobs.CutSpec{Start: 0, End: 5, Reencode: true}}, []string{"libx264", "aac"}, "op-01-cut.mp4"},
		{"preview defaults", jobs.NewPreview(2, 4, 0, 0), []string{"fps=12,scale=480:-1:flags=lanczos", "-loop"}, "op-01-animated_preview.gif"},
		{"still", still, []string{"-frames:v", "scale=640:-1"}, "op-01-still.png"},
		{"loop", jobs.NewLoop(0, 2, 3), []string{"[0:v]loop=loop=2:size=32767:start=0,setpts=N/FRAME_RATE/TB[v]", "-an"}, "op-01-loop.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := transcode.BuildArgs(request(tt.export))
			if err != nil {
				t.Fatalf("BuildArgs: %v", err)
			}
			for _, want := range tt.contains {
				if !slices.Contains(args, want) {
					t.Fatalf("expected %q in %v", want, args)
				}
			}
			if last := args[len(args)-1]; !strings.HasSuffix(last, tt.output) {
				t.Fatalf("unexpected output %q", last)
			}
		})
	}
}

func TestBuildArgsRejectsMissingPayload(t *testing.T) {
	req := request(jobs.NewCut(0, 1))
	req.Operation.Export.Cut = nil
	if _, err := transcode.BuildArgs(req); err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestRequestTotal(t *testing.T) {
	tests := []struct {
		export jobs.Export
		want   time.Duration
	}{
		{jobs.NewCut(10, 40), 30 * time.Second},
		{jobs.NewPreview(0, 2.5, 10, 320), 2500 * time.Millisecond},
		{jobs.NewStill(5, 0), time.Second},
		{jobs.NewLoop(0, 2, 4), 8 * time.Second},
	}
	for _, tt := range tests {
		if got := request(tt.export).Total(); got != tt.want {
			t.Fatalf("%s total = %s, want %s", tt.export.Type, got, tt.want)
		}
	}
}
