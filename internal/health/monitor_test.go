package health_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
	"clipforge/internal/transcode"
	"clipforge/internal/workflow"
)

const waitTimeout = 5 * time.Second

type env struct {
	cfg      *config.Config
	store    *jobs.Store
	runner   *testsupport.FakeRunner
	notifier *testsupport.RecordingNotifier
	mgr      *workflow.Manager
	offset   time.Duration
	mu       sync.Mutex
	monitor  *health.Monitor
}

func newEnv(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Estimator.FloorSeconds = 1800
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	e := &env{
		cfg:      cfg,
		store:    store,
		runner:   testsupport.NewFakeRunner(),
		notifier: testsupport.NewRecordingNotifier(),
	}
	e.mgr = workflow.NewManager(cfg, store, e.runner, logging.NewNop(), workflow.WithNotifier(e.notifier))
	e.monitor = health.NewMonitor(cfg, store, e.mgr, e.mgr.Estimator().Ceiling(), logging.NewNop(),
		health.WithClock(e.now))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = e.mgr.Shutdown(ctx)
	})
	return e
}

func (e *env) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().Add(e.offset)
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	e.offset += d
	e.mu.Unlock()
}

func TestRecoverOrphansFailsUnownedProcessingJobs(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	testsupport.MustCreateJob(t, e.store, "orphan", "alice")
	if err := e.store.BeginAttempt(ctx, "orphan", 0, time.Now(), time.Hour); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	testsupport.MustCreateJob(t, e.store, "waiting", "alice")

	orphans, err := e.monitor.RecoverOrphans(ctx)
	if err != nil {
		t.Fatalf("RecoverOrphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "orphan" {
		t.Fatalf("unexpected orphans %v", orphans)
	}
	job := testsupport.MustGetJob(t, e.store, "orphan")
	if job.Status != jobs.StatusFailed || job.ErrorMessage != jobs.InterruptedMessage {
		t.Fatalf("expected interrupted failure, got status=%s error=%q", job.Status, job.ErrorMessage)
	}
	if waiting := testsupport.MustGetJob(t, e.store, "waiting"); waiting.Status != jobs.StatusPending {
		t.Fatalf("pending job must not be touched, got %s", waiting.Status)
	}
	e.notifier.WaitForCount(t, 1, waitTimeout)

	if _, err := e.monitor.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if e.notifier.Count() != 1 {
		t.Fatalf("expected a single notification, got %d", e.notifier.Count())
	}
}

func TestSweepRestartsStalledJob(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.runner.Behavior = func(transcode.Request) testsupport.Outcome { return testsupport.Stall }

	if _, err := e.mgr.Submit(ctx, testsupport.NewJob("stalled", "alice")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e.runner.WaitStarted(t, waitTimeout)

	report, err := e.monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Restarted)+len(report.Failed)+len(report.Orphaned) != 0 {
		t.Fatalf("fresh job must be left alone: %+v", report)
	}

	e.advance(200 * time.Second)
	report, err = e.monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Restarted) != 1 || report.Restarted[0] != "stalled" {
		t.Fatalf("expected restart, got %+v", report)
	}
	req := e.runner.WaitStarted(t, waitTimeout)
	if req.Epoch != 1 {
		t.Fatalf("expected epoch 1 run, got %d", req.Epoch)
	}
	job := testsupport.MustGetJob(t, e.store, "stalled")
	if job.Epoch != 1 || job.Status != jobs.StatusProcessing || job.Progress != 0 {
		t.Fatalf("unexpected job after restart: epoch=%d status=%s progress=%v", job.Epoch, job.Status, job.Progress)
	}
	if e.notifier.Count() != 0 {
		t.Fatalf("restart must not notify, got %d", e.notifier.Count())
	}
	if last, ok := e.monitor.LastSweep(); !ok || len(last.Restarted) != 1 {
		t.Fatalf("expected last sweep report, got %+v (ok=%v)", last, ok)
	}
}

func TestSweepGivesUpAfterRestartBudget(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) { cfg.Health.MaxRestarts = 1 })
	ctx := context.Background()
	e.runner.Behavior = func(transcode.Request) testsupport.Outcome { return testsupport.Stall }

	if _, err := e.mgr.Submit(ctx, testsupport.NewJob("hopeless", "alice")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e.runner.WaitStarted(t, waitTimeout)

	e.advance(200 * time.Second)
	if report, err := e.monitor.Sweep(ctx); err != nil || len(report.Restarted) != 1 {
		t.Fatalf("expected first restart, got %+v (err=%v)", report, err)
	}
	e.runner.WaitStarted(t, waitTimeout)

	e.advance(200 * time.Second)
	report, err := e.monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected failure after budget, got %+v", report)
	}
	job := testsupport.MustGetJob(t, e.store, "hopeless")
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	want := "gave up after 1 restarts: stalled for"
	if len(job.ErrorMessage) < len(want) || job.ErrorMessage[:len(want)] != want {
		t.Fatalf("unexpected message %q", job.ErrorMessage)
	}
	e.notifier.WaitForCount(t, 1, waitTimeout)

	for range 3 {
		e.advance(time.Minute)
		if _, err := e.monitor.Sweep(ctx); err != nil {
			t.Fatalf("Sweep: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if e.notifier.Count() != 1 {
		t.Fatalf("expected exactly one notification across sweeps, got %d", e.notifier.Count())
	}
}

func TestSweepFailsJobPastDeadlineAndNotifiesOnce(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.runner.Behavior = func(transcode.Request) testsupport.Outcome { return testsupport.Block }

	if _, err := e.mgr.Submit(ctx, testsupport.NewJob("overdue", "alice")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e.runner.WaitStarted(t, waitTimeout)
	job := testsupport.MustGetJob(t, e.store, "overdue")
	if job.TimeoutBudget != 30*time.Minute {
		t.Fatalf("expected floor budget of 30m, got %s", job.TimeoutBudget)
	}

	e.advance(31 * time.Minute)
	report, err := e.monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Failed) != 1 || len(report.Restarted) != 0 {
		t.Fatalf("expected deadline failure without restart, got %+v", report)
	}
	job = testsupport.MustGetJob(t, e.store, "overdue")
	if job.Status != jobs.StatusFailed || job.Epoch != 0 {
		t.Fatalf("expected failed epoch 0, got status=%s epoch=%d", job.Status, job.Epoch)
	}
	if !strings.Contains(job.ErrorMessage, "exceeded deadline of 30m0s") {
		t.Fatalf("unexpected message %q", job.ErrorMessage)
	}
	if e.mgr.IsActive("overdue") {
		t.Fatal("worker must be stopped after a deadline failure")
	}
	e.notifier.WaitForCount(t, 1, waitTimeout)

	for range 3 {
		e.advance(time.Minute)
		if report, err := e.monitor.Sweep(ctx); err != nil || len(report.Failed) != 0 {
			t.Fatalf("later sweeps must not act again: %+v (err=%v)", report, err)
		}
	}
	if err := e.mgr.Fail(ctx, "overdue", "late duplicate"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected terminal job to reject another failure, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if e.notifier.Count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", e.notifier.Count())
	}
	if sent := e.notifier.Sent(); sent[0].UserID != "alice" {
		t.Fatalf("expected notification to the owner, got %+v", sent[0])
	}
}

type fakeLifecycle struct {
	mu        sync.Mutex
	active    map[string]bool
	restarted []string
	failed    map[string]string
	failErr   error
}

func (f *fakeLifecycle) IsActive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func (f *fakeLifecycle) Restart(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, id)
	return nil
}

func (f *fakeLifecycle) Fail(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = message
	return nil
}

type staticLister []*jobs.Job

func (s staticLister) ListNonTerminal(context.Context) ([]*jobs.Job, error) {
	return s, nil
}

func TestSweepSkipsReservedPendingJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	old := baseTime.Add(-time.Hour)
	list := staticLister{
		{SessionID: "restarting", Status: jobs.StatusPending, CreatedAt: old},
		{SessionID: "stuck", Status: jobs.StatusPending, CreatedAt: old},
	}
	lifecycle := &fakeLifecycle{active: map[string]bool{"restarting": true}}
	monitor := health.NewMonitor(cfg, list, lifecycle, ceiling, logging.NewNop(),
		health.WithClock(func() time.Time { return baseTime }))

	report, err := monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(lifecycle.restarted) != 1 || lifecycle.restarted[0] != "stuck" {
		t.Fatalf("expected only the stuck job restarted, got %v", lifecycle.restarted)
	}
	if report.Examined != 2 || len(report.Stalled) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSweepRecordsActionErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	started := baseTime.Add(-time.Minute)
	list := staticLister{
		{SessionID: "orphan", Status: jobs.StatusProcessing, StartedAt: &started, CreatedAt: started},
		{SessionID: "gone", Status: jobs.StatusProcessing, StartedAt: &started, CreatedAt: started},
	}

	lifecycle := &fakeLifecycle{failErr: errors.New("database is locked")}
	monitor := health.NewMonitor(cfg, list, lifecycle, ceiling, logging.NewNop(),
		health.WithClock(func() time.Time { return baseTime }))
	report, err := monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Errors) != 2 || len(report.Orphaned) != 0 {
		t.Fatalf("expected two recorded errors, got %+v", report)
	}

	lifecycle.failErr = services.Wrap(services.ErrValidation, "workflow", "fail", "job already completed", nil)
	report, err = monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("jobs that finished concurrently are not errors, got %v", report.Errors)
	}
}
