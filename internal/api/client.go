package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("daemon unavailable")

// StatusError is a non-2xx API response.
type StatusError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api %d: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api %d: %s", e.Code, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
	// stream has no overall timeout; event streams stay open for the job's
	// lifetime.
	stream *http.Client
}

// NewClient builds a client for the daemon listening on bind (host:port or
// a full URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base:   base,
		token:  strings.TrimSpace(token),
		http:   &http.Client{Timeout: 30 * time.Second},
		stream: &http.Client{},
	}
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job fetches one job with its live overlay.
func (c *Client) Job(ctx context.Context, sessionID string) (*Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs lists jobs for a user, or by status when user is empty.
func (c *Client) ListJobs(ctx context.Context, user string, statuses ...string) ([]Job, error) {
	query := url.Values{}
	if user != "" {
		query.Set("user", user)
	}
	for _, status := range statuses {
		query.Add("status", status)
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel cancels a job.
func (c *Client) Cancel(ctx context.Context, sessionID string) (*Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(sessionID)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restart restarts a job at its next epoch.
func (c *Client) Restart(ctx context.Context, sessionID, reason string) (*Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(sessionID)+"/restart", RestartRequest{Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove deletes a terminal job record.
func (c *Client) Remove(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(sessionID), nil, nil)
}

// Sweep triggers a health sweep.
func (c *Client) Sweep(ctx context.Context) (*SweepReport, error) {
	var resp SweepReport
	if err := c.do(ctx, http.MethodPost, "/api/health/sweep", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the daemon summary.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*NotifyResponse, error) {
	var resp NotifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/notify/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, reader, "application/json")
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// checkStatus converts a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	var apiErr ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
		apiErr.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{Code: resp.StatusCode, Message: apiErr.Error, RequestID: apiErr.RequestID}
}
