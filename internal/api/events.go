package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"clipforge/internal/broadcast"
)

// ErrStopWatch may be returned by a Watch callback to end the stream early
// without reporting an error.
var ErrStopWatch = errors.New("stop watching")

// Watch follows a job's server-sent event stream, invoking fn for every
// event until the daemon closes the stream (the job reached a terminal
// state), ctx ends, or fn returns an error.
func (c *Client) Watch(ctx context.Context, sessionID string, fn func(broadcast.Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(sessionID)+"/events", nil, "text/event-stream")
	if err != nil {
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	err = readEvents(resp.Body, fn)
	if errors.Is(err, ErrStopWatch) {
		return nil
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents parses the subset of the SSE wire format the daemon emits:
// "event:" and "data:" fields, comment lines, blank-line dispatch.
func readEvents(r io.Reader, fn func(broadcast.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data strings.Builder
	dispatch := func() error {
		if data.Len() == 0 {
			return nil
		}
		var evt broadcast.Event
		if err := json.Unmarshal([]byte(data.String()), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		data.Reset()
		return fn(evt)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
