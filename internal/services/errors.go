package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrAdmission     = errors.New("admission rejected")
	ErrCancelled     = errors.New("cancelled by user")
	ErrSuperseded    = errors.New("superseded by restart")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureMessage renders the user-visible error message persisted on a failed
// job. Cancellation collapses to the fixed "cancelled by user" text.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return "unknown failure"
	case errors.Is(err, ErrCancelled):
		return ErrCancelled.Error()
	default:
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			return "unknown failure"
		}
		return msg
	}
}

// IsUserFacing reports whether err should be surfaced to API callers verbatim
// (as opposed to being treated as an internal failure).
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrAdmission) || errors.Is(err, ErrNotFound)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
