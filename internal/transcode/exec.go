package transcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

const maxLineBytes = 1 << 20

type commandExecutor struct {
	grace time.Duration
}

// Run starts binary in its own process group and forwards stdout and stderr
// line by line. When ctx ends the group receives SIGTERM and, if it is still
// alive after the grace period, SIGKILL.
func (e commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.Command(binary, args...) //nolint:gosec
	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	exited := make(chan struct{})
	var supervisor sync.WaitGroup
	supervisor.Add(1)
	go func() {
		defer supervisor.Done()
		select {
		case <-ctx.Done():
			terminate(cmd, e.grace, exited)
		case <-exited:
		}
	}()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
	)
	forward := func(line string) {
		if onLine == nil {
			return
		}
		mu.Lock()
		onLine(line)
		mu.Unlock()
	}
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	close(exited)
	supervisor.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("command interrupted: %w", context.Cause(ctx))
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("wait command: %w", waitErr)
	}
	return nil
}

func terminate(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}) {
	_ = signalTerminate(cmd)
	if grace <= 0 {
		_ = signalKill(cmd)
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		_ = signalKill(cmd)
	}
}
