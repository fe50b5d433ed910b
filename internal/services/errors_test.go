package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"clipforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "transcode", "cut", "ffmpeg failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "cut", "ffmpeg failed", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestFailureMessage(t *testing.T) {
	cancelled := fmt.Errorf("run: %w", services.ErrCancelled)
	if got := services.FailureMessage(cancelled); got != "cancelled by user" {
		t.Fatalf("unexpected cancel message %q", got)
	}
	if got := services.FailureMessage(nil); got != "unknown failure" {
		t.Fatalf("unexpected nil message %q", got)
	}
	worker := services.Wrap(services.ErrExternalTool, "transcode", "still", "", errors.New("exit status 183"))
	if got := services.FailureMessage(worker); !strings.Contains(got, "exit status 183") {
		t.Fatalf("expected verbatim worker error, got %q", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if !services.IsUserFacing(services.Wrap(services.ErrAdmission, "jobs", "submit", "limit", nil)) {
		t.Fatal("expected admission error to be user facing")
	}
	if services.IsUserFacing(services.Wrap(services.ErrExternalTool, "transcode", "", "", nil)) {
		t.Fatal("expected external tool error to be internal")
	}
}
