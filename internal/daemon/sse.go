package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clipforge/internal/broadcast"
	"clipforge/internal/logging"
)

const (
	sseBuffer    = 128
	sseKeepalive = 15 * time.Second
)

// handleEvents streams a job's progress as server-sent events. The stream
// opens with the current status (and live snapshot when running) and ends
// after the job reaches a terminal state or the client disconnects.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hub := s.daemon.manager.Broadcaster()

	// Subscribe before reading the current state so no transition falls
	// between the two.
	sink := broadcast.NewChannelSink(sseBuffer)
	hub.Subscribe(id, sink)
	defer func() {
		hub.Unsubscribe(id, sink)
		sink.Close()
	}()

	status, err := s.daemon.manager.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	stream := &eventStream{w: w, rc: rc, epoch: status.Job.Epoch}
	initial := broadcast.StatusEvent(status.Job)
	initial.Timestamp = time.Now().UTC()
	if err := stream.send(initial); err != nil {
		return
	}
	if status.Live != nil {
		live := broadcast.ProgressEvent(id, *status.Live)
		live.Timestamp = initial.Timestamp
		stream.admit(live)
		if err := stream.send(live); err != nil {
			return
		}
	}
	if status.Job.Status.IsTerminal() {
		return
	}

	logger := logging.WithContext(r.Context(), s.logger)
	logger.Debug("event stream opened", logging.String(logging.FieldSessionID, id))
	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := stream.comment("keepalive"); err != nil {
				return
			}
		case evt := <-sink.Events():
			if !stream.admit(evt) {
				continue
			}
			if err := stream.send(evt); err != nil {
				logger.Debug("event stream closed", logging.Error(err))
				return
			}
			if evt.Kind == broadcast.KindStatus && evt.Status.IsTerminal() {
				return
			}
		}
	}
}

type eventStream struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	seq int

	// epoch and highWater track what the client has already seen. Events
	// queued between Subscribe and the initial snapshot may be older than
	// the snapshot and are skipped.
	epoch     int
	highWater float64
}

// admit reports whether evt should reach the client: nothing from an older
// epoch, and no progress below a percentage already sent in this epoch.
func (e *eventStream) admit(evt broadcast.Event) bool {
	switch {
	case evt.Epoch < e.epoch:
		return false
	case evt.Epoch > e.epoch:
		e.epoch = evt.Epoch
		e.highWater = 0
	}
	if evt.Kind == broadcast.KindProgress {
		if evt.Progress < e.highWater {
			return false
		}
		e.highWater = evt.Progress
	}
	return true
}

func (e *eventStream) send(evt broadcast.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	e.seq++
	if _, err := fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", e.seq, evt.Kind, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (e *eventStream) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	return e.rc.Flush()
}

