package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckNtfy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	if result := CheckNtfy(context.Background(), ok.URL+"/clipforge"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer denied.Close()
	if result := CheckNtfy(context.Background(), denied.URL+"/clipforge"); result.Passed {
		t.Fatal("expected failure for forbidden topic")
	}

	if result := CheckNtfy(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for missing topic")
	}
}

func TestCheckRedisUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	result := CheckRedis(context.Background(), config.Redis{Addr: addr})
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestRunAllSkipsUnconfiguredServices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.FFmpegBinary = filepath.Join(t.TempDir(), "missing-ffmpeg")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 3 directory checks and ffmpeg, got %+v", results)
	}
	if Failed(results) != 1 || results[3].Passed {
		t.Fatalf("expected only ffmpeg to fail, got %+v", results)
	}
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results without config")
	}
}
