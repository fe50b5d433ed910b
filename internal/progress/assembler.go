package progress

import "strings"

const maxPendingLines = 64

// Assembler groups a line stream into chunks suitable for Parse. ffmpeg's
// "-progress" output is a block of key=value lines terminated by a
// "progress=" line; classic stats lines carry everything on one line and are
// emitted on their own.
type Assembler struct {
	pending []string
}

// Feed adds one line and returns a complete chunk when one is ready.
func (a *Assembler) Feed(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if isStatsLine(trimmed) {
		return trimmed, true
	}
	a.pending = append(a.pending, trimmed)
	if strings.HasPrefix(trimmed, "progress=") {
		chunk := strings.Join(a.pending, "\n")
		a.pending = a.pending[:0]
		return chunk, true
	}
	if len(a.pending) > maxPendingLines {
		a.pending = append(a.pending[:0], a.pending[len(a.pending)-maxPendingLines:]...)
	}
	return "", false
}

// Flush returns whatever is buffered, for use once the stream ends.
func (a *Assembler) Flush() (string, bool) {
	if len(a.pending) == 0 {
		return "", false
	}
	chunk := strings.Join(a.pending, "\n")
	a.pending = a.pending[:0]
	return chunk, true
}

func isStatsLine(line string) bool {
	return strings.Contains(line, "time=") && strings.Contains(line, " ") && strings.Count(line, "=") > 1
}
