package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"clipforge/internal/jobs"
)

// Notification is one captured failure notification.
type Notification struct {
	UserID  string
	Summary jobs.Summary
}

// RecordingNotifier captures notifications instead of sending them.
type RecordingNotifier struct {
	mu     sync.Mutex
	sent   []Notification
	tests  int
	signal chan struct{}
}

// NewRecordingNotifier returns an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{signal: make(chan struct{}, 64)}
}

func (r *RecordingNotifier) NotifyFailure(_ context.Context, userID string, summary jobs.Summary) error {
	r.mu.Lock()
	r.sent = append(r.sent, Notification{UserID: userID, Summary: summary})
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

func (r *RecordingNotifier) TestNotification(context.Context) error {
	r.mu.Lock()
	r.tests++
	r.mu.Unlock()
	return nil
}

// Count returns the number of failure notifications recorded.
func (r *RecordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// Sent returns a copy of the recorded notifications.
func (r *RecordingNotifier) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// WaitForCount blocks until at least n notifications were recorded.
func (r *RecordingNotifier) WaitForCount(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for r.Count() < n {
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("expected %d notifications, got %d", n, r.Count())
		}
	}
}
