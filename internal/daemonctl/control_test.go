//go:build unix

package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"clipforge/internal/api"
	"clipforge/internal/jobs"
	"clipforge/internal/testsupport"
)

// unreachableClient points at a listener that was closed immediately.
func unreachableClient(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	return api.NewClient(addr, "")
}

func TestResolvePIDPrefersPIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "clipforge.pid")
	if err := os.WriteFile(pidPath, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := resolvePID(pidPath, 7)
	if err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d (%v)", pid, err)
	}

	pid, err = resolvePID(filepath.Join(dir, "missing.pid"), 7)
	if err != nil || pid != 7 {
		t.Fatalf("expected fallback 7, got %d (%v)", pid, err)
	}

	if _, err := resolvePID(filepath.Join(dir, "missing.pid"), 0); err == nil {
		t.Fatal("expected error without any pid")
	}
	if _, err := resolvePID(filepath.Join(dir, "missing.pid"), os.Getpid()); err == nil {
		t.Fatal("expected refusal to signal the current process")
	}
}

func TestStopWhenDaemonNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := Stop(context.Background(), unreachableClient(t), cfg, time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopSignalsDaemonProcess(t *testing.T) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}
	child := exec.Command(sleepPath, "30")
	if err := child.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(exited)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: child.Process.Pid})
	}))
	go func() {
		<-exited
		srv.Close()
	}()
	t.Cleanup(func() {
		_ = child.Process.Kill()
		<-exited
	})

	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(child.Process.Pid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	result, err := Stop(context.Background(), api.NewClient(srv.URL, ""), cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.PID != child.Process.Pid || result.ForcedKill {
		t.Fatalf("unexpected stop result %+v", result)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.FFmpegBinary = filepath.Join(t.TempDir(), "no-ffmpeg")
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreateJob(t, store, "a", "alice")
	testsupport.MustCreateJob(t, store, "b", "bob")

	status, err := BuildStatusSnapshot(context.Background(), unreachableClient(t), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("offline snapshot must not report running")
	}
	if status.Counts[string(jobs.StatusPending)] != 2 {
		t.Fatalf("expected 2 pending, got %+v", status.Counts)
	}
	if len(status.Dependencies) != 1 || status.Dependencies[0].Available {
		t.Fatalf("expected unavailable ffmpeg, got %+v", status.Dependencies)
	}
}

func TestBuildStatusSnapshotPrefersDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 99, Counts: map[string]int{"processing": 1}})
	}))
	t.Cleanup(srv.Close)

	status, err := BuildStatusSnapshot(context.Background(), api.NewClient(srv.URL, ""), testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !status.Running || status.PID != 99 || status.Counts["processing"] != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}
