package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// Status reports the availability of an external binary.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// Lookup resolves command on PATH. Detail explains why it is unavailable.
func Lookup(name, command, description string) Status {
	status := Status{
		Name:        name,
		Command:     strings.TrimSpace(command),
		Description: description,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// CheckFFmpeg resolves the ffmpeg binary and records the first line of its
// version banner in Detail. A binary that resolves but cannot report its
// version is unavailable.
func CheckFFmpeg(ctx context.Context, binary string) Status {
	status := Lookup("FFmpeg", binary, "Runs cut, preview, still and loop operations")
	if !status.Available {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, status.Command, "-hide_banner", "-version").Output()
	if err != nil {
		status.Available = false
		status.Detail = fmt.Sprintf("%s -version failed: %v", status.Command, err)
		return status
	}
	status.Detail = versionLine(out)
	return status
}

func versionLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
