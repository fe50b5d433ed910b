package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clipforge/internal/broadcast"
	"clipforge/internal/config"
	"clipforge/internal/estimate"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/progress"
	"clipforge/internal/transcode"
)

const (
	// storeTimeout bounds terminal writes issued after the worker context ended.
	storeTimeout        = 10 * time.Second
	notificationTimeout = notifications.Timeout
)

var errShutdown = errors.New("manager shutting down")

// Manager coordinates job execution.
type Manager struct {
	cfg       *config.Config
	store     *jobs.Store
	runner    transcode.Runner
	estimator *estimate.Estimator
	hub       *broadcast.Broadcaster
	notifier  notifications.Service
	logger    *slog.Logger
	now       func() time.Time

	// admitMu serializes the count-then-insert admission check.
	admitMu sync.Mutex

	mu       sync.Mutex
	active   map[string]*activeJob
	reserved map[string]struct{}
	closed   bool

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc
	workers    sync.WaitGroup
	background sync.WaitGroup
}

type activeJob struct {
	sessionID string
	epoch     int
	budget    time.Duration
	cancel    context.CancelCauseFunc
	done      chan struct{}
	tracker   *progress.Tracker
	sampler   *logging.ProgressSampler

	mu  sync.Mutex
	job *jobs.Job
}

func (a *activeJob) setOperation(op jobs.Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if op.Index >= 0 && op.Index < len(a.job.Operations) {
		a.job.Operations[op.Index] = op
	}
}

func (a *activeJob) markProgress(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stamp := at
	a.job.LastProgressAt = &stamp
}

func (a *activeJob) view() *jobs.Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job.Clone()
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service (used in tests).
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithBroadcaster shares a broadcaster with other components.
func WithBroadcaster(hub *broadcast.Broadcaster) ManagerOption {
	return func(m *Manager) {
		if hub != nil {
			m.hub = hub
		}
	}
}

// WithEstimator overrides the deadline estimator.
func WithEstimator(estimator *estimate.Estimator) ManagerOption {
	return func(m *Manager) {
		if estimator != nil {
			m.estimator = estimator
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a lifecycle manager.
func NewManager(cfg *config.Config, store *jobs.Store, runner transcode.Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	baseCtx, baseCancel := context.WithCancelCause(context.Background())
	m := &Manager{
		cfg:        cfg,
		store:      store,
		runner:     runner,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		now:        time.Now,
		active:     make(map[string]*activeJob),
		reserved:   make(map[string]struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.estimator == nil {
		m.estimator = estimate.New(cfg.Estimator)
	}
	if m.hub == nil {
		m.hub = broadcast.New(logger)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	return m
}

// Broadcaster returns the event hub jobs publish to.
func (m *Manager) Broadcaster() *broadcast.Broadcaster {
	return m.hub
}

// Estimator returns the deadline estimator.
func (m *Manager) Estimator() *estimate.Estimator {
	return m.estimator
}

// Store returns the job store.
func (m *Manager) Store() *jobs.Store {
	return m.store
}

// Shutdown stops every running worker without writing terminal state; those
// jobs are recovered as orphans on the next start. It waits for workers and
// pending notifications until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.baseCancel(errShutdown)

	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		m.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
