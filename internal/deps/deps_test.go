package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLookup(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	cases := []struct {
		name      string
		command   string
		available bool
	}{
		{name: "present", command: present, available: true},
		{name: "missing", command: "clearly-not-present-binary"},
		{name: "blank", command: "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := Lookup(tc.name, tc.command, "")
			if status.Available != tc.available {
				t.Fatalf("Available = %v, want %v (%q)", status.Available, tc.available, status.Detail)
			}
			if !tc.available && status.Detail == "" {
				t.Fatal("expected a detail message for an unavailable binary")
			}
			if tc.available && status.Detail != "" {
				t.Fatalf("unexpected detail for available binary: %s", status.Detail)
			}
		})
	}
}

func TestCheckFFmpegReportsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	script := []byte("#!/bin/sh\necho 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'\n")
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}

	status := CheckFFmpeg(context.Background(), ffmpegPath)
	if !status.Available {
		t.Fatalf("expected ffmpeg to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
	if status.Detail != "ffmpeg version 7.1 Copyright (c) 2000-2024" {
		t.Fatalf("unexpected version detail %q", status.Detail)
	}
}

func TestCheckFFmpegFailingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	status := CheckFFmpeg(context.Background(), ffmpegPath)
	if status.Available {
		t.Fatal("expected a failing binary to be reported unavailable")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message for failing binary")
	}
}

func TestCheckFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckFFmpeg(context.Background(), "ffmpeg")
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffmpeg is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
