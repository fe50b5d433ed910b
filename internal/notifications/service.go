package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/jobs"
)

const userAgent = "clipforge/0.1.0"

// Timeout bounds fire-and-forget sends issued from background goroutines.
const Timeout = 30 * time.Second

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyFailure(ctx context.Context, userID string, summary jobs.Summary) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, or failure notifications are disabled, a
// noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: cfg.NotifyTimeout()},
		failures: cfg.Notifications.Failures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	failures bool
}

func (n *ntfyService) NotifyFailure(ctx context.Context, userID string, summary jobs.Summary) error {
	if !n.failures {
		return nil
	}
	return n.send(ctx, failurePayload(userID, summary))
}

func failurePayload(userID string, summary jobs.Summary) payload {
	reason := strings.TrimSpace(summary.ErrorMessage)
	if reason == "" {
		reason = "unknown failure"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s failed: %s", summary.SessionID, reason)
	if summary.VideoID != "" {
		fmt.Fprintf(&b, "\nVideo: %s", summary.VideoID)
	}
	owner := strings.TrimSpace(summary.UserEmail)
	if owner == "" {
		owner = strings.TrimSpace(userID)
	}
	if owner != "" {
		fmt.Fprintf(&b, "\nUser: %s", owner)
	}
	fmt.Fprintf(&b, "\nProgress: %.0f%% after %d restart(s)", summary.Progress, summary.Epoch)
	return payload{
		title:    "clipforge - Job Failed",
		message:  b.String(),
		tags:     []string{"clipforge", "job", "failed"},
		priority: "high",
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "clipforge - Test",
		message:  "Notification system test",
		tags:     []string{"clipforge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFailure(context.Context, string, jobs.Summary) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
