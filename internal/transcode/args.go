package transcode

import (
	"errors"
	"fmt"
	"strconv"

	"clipforge/internal/jobs"
)

const (
	defaultPreviewFPS   = 12
	defaultPreviewWidth = 480
)

// BuildArgs returns the ffmpeg argument list for req. Progress is requested
// on stdout as key=value blocks and the classic stats line is suppressed.
func BuildArgs(req Request) ([]string, error) {
	export := req.Operation.Export
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-progress", "pipe:1", "-nostats"}

	switch export.Type {
	case jobs.ExportCut:
		if export.Cut == nil {
			return nil, errors.New("cut payload missing")
		}
		args = append(args,
			"-ss", seconds(export.Cut.Start),
			"-to", seconds(export.Cut.End),
			"-i", req.Input,
		)
		if export.Cut.Reencode {
			args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac")
		} else {
			args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
		}
	case jobs.ExportAnimatedPreview:
		p := export.Preview
		if p == nil {
			return nil, errors.New("animated_preview payload missing")
		}
		fps := p.FPS
		if fps <= 0 {
			fps = defaultPreviewFPS
		}
		width := p.Width
		if width <= 0 {
			width = defaultPreviewWidth
		}
		args = append(args,
			"-ss", seconds(p.Start),
			"-t", seconds(p.Duration),
			"-i", req.Input,
			"-vf", fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", fps, width),
			"-loop", "0",
		)
	case jobs.ExportStill:
		s := export.Still
		if s == nil {
			return nil, errors.New("still payload missing")
		}
		args = append(args, "-ss", seconds(s.At), "-i", req.Input, "-frames:v", "1")
		if s.Width > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", s.Width))
		}
	case jobs.ExportLoop:
		l := export.Loop
		if l == nil {
			return nil, errors.New("loop payload missing")
		}
		if l.Count < 1 {
			return nil, errors.New("loop count must be at least 1")
		}
		args = append(args,
			"-ss", seconds(l.Start),
			"-t", seconds(l.Duration),
			"-i", req.Input,
			"-filter_complex", fmt.Sprintf("[0:v]loop=loop=%d:size=32767:start=0,setpts=N/FRAME_RATE/TB[v]", l.Count-1),
			"-map", "[v]", "-an",
			"-c:v", "libx264", "-preset", "veryfast",
		)
	default:
		return nil, fmt.Errorf("unsupported export type %q", export.Type)
	}
	return append(args, req.Output), nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
