package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/api"
	"clipforge/internal/config"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/outputs"
	"clipforge/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", srv.handleSubmit)
	mux.HandleFunc("GET /api/jobs", srv.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", srv.handleGet)
	mux.HandleFunc("DELETE /api/jobs/{id}", srv.handleRemove)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/jobs/{id}/restart", srv.handleRestart)
	mux.HandleFunc("GET /api/jobs/{id}/events", srv.handleEvents)
	mux.HandleFunc("POST /api/health/sweep", srv.handleSweep)
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("POST /api/notify/test", srv.handleNotifyTest)

	srv.handler = requestIDMiddleware(authMiddleware(cfg.API.Token, mux))
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check api.bind"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil && s.listener != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			_ = s.server.Close()
		}
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err := api.ValidateSubmitBody(raw); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req api.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	manager := s.daemon.manager
	id, err := manager.Submit(r.Context(), req.ToJob())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status, err := manager.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{
		SessionID: id,
		Job:       api.FromJobStatus(status.Job, status.Active, status.Live),
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []jobs.Status
	for _, value := range query["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := jobs.ParseStatus(value)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	store := s.daemon.store
	var (
		list []*jobs.Job
		err  error
	)
	if user := strings.TrimSpace(query.Get("user")); user != "" {
		list, err = store.ListForUser(r.Context(), user)
		list = filterStatuses(list, statuses)
	} else {
		list, err = store.ListByStatus(r.Context(), statuses...)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	s.writeJobStatus(w, r, r.PathValue("id"))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.manager.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJobStatus(w, r, id)
}

func (s *apiServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req api.RestartRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual restart"
	}
	if err := s.daemon.manager.Restart(r.Context(), id, reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJobStatus(w, r, id)
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	store := s.daemon.store
	removed, err := store.Remove(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !removed {
		job, err := store.Get(r.Context(), id)
		switch {
		case err != nil:
			s.writeServiceError(w, r, err)
		case job == nil:
			s.writeError(w, r, http.StatusNotFound, "job not found")
		default:
			s.writeError(w, r, http.StatusConflict, fmt.Sprintf("job is %s; cancel it first", job.Status))
		}
		return
	}
	if err := outputs.RemoveJob(s.daemon.cfg.Paths.OutputDir, id); err != nil {
		s.logger.Warn("job output not removed",
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_remove_failed"),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.monitor.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSweepReport(report))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotifyResponse{Sent: sent, Message: message})
}

func (s *apiServer) writeJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	status, err := s.daemon.manager.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJobStatus(status.Job, status.Active, status.Live))
}

func filterStatuses(list []*jobs.Job, statuses []jobs.Status) []*jobs.Job {
	if len(statuses) == 0 {
		return list
	}
	out := list[:0]
	for _, job := range list {
		for _, status := range statuses {
			if job.Status == status {
				out = append(out, job)
				break
			}
		}
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// httpStatus maps error markers to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAdmission):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, r, code, message)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{Error: message}
	if id, ok := services.RequestIDFromContext(r.Context()); ok {
		resp.RequestID = id
	}
	s.writeJSON(w, status, resp)
}
