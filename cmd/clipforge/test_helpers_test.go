package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/deps"
	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *jobs.Store
	runner     *testsupport.FakeRunner
	manager    *workflow.Manager
	daemon     *daemon.Daemon
	configPath string
	server     string
}

// setupCLITestEnv starts an in-process daemon on a random port. behavior may
// be nil; it is installed before the daemon starts serving.
func setupCLITestEnv(t *testing.T, behavior testsupport.Behavior, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	runner := testsupport.NewFakeRunner()
	if behavior != nil {
		runner.Behavior = behavior
	}
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, runner, logger, workflow.WithNotifier(testsupport.NewRecordingNotifier()))
	monitor := health.NewMonitor(cfg, store, mgr, mgr.Estimator().Ceiling(), logger)

	d, err := daemon.New(cfg, store, mgr, monitor, logger,
		daemon.WithDependencyCheck(func(context.Context) []deps.Status {
			return []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true, Detail: "ffmpeg version test"}}
		}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		runner:     runner,
		manager:    mgr,
		daemon:     d,
		configPath: configPath,
		server:     d.Addr(),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath, "--server", e.server}, args...))
}

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\noutput_dir = %q\nlog_dir = %q\n\n[api]\nbind = %q\ntoken = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.API.Token,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
