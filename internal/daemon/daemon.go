package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/api"
	"clipforge/internal/broadcast"
	"clipforge/internal/config"
	"clipforge/internal/deps"
	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/outputs"
	"clipforge/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

// Daemon coordinates the background services and enforces single-instance
// execution. A Daemon runs once: after Stop the workflow manager refuses new
// work.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	manager   *workflow.Manager
	monitor   *health.Monitor
	notifier  notifications.Service
	checkDeps func(context.Context) []deps.Status

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	redisClient *redis.Client
	mirror      *broadcast.RedisMirror
	producer    sarama.SyncProducer
	events      *broadcast.KafkaRelay

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notification service used for test sends.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithDependencyCheck overrides the external binary check reported by Status.
func WithDependencyCheck(check func(context.Context) []deps.Status) Option {
	return func(d *Daemon) {
		if check != nil {
			d.checkDeps = check
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, manager *workflow.Manager, monitor *health.Monitor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || monitor == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and health monitor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		manager:  manager,
		monitor:  monitor,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.checkDeps = func(ctx context.Context) []deps.Status {
		return []deps.Status{deps.CheckFFmpeg(ctx, cfg.Worker.FFmpegBinary)}
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers orphaned jobs, and launches the
// health monitor, the optional Redis mirror and Kafka event stream, and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	orphans, err := d.monitor.RecoverOrphans(d.ctx)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if len(orphans) > 0 {
		d.logger.Info("recovered orphaned jobs",
			logging.Int("count", len(orphans)),
			logging.String(logging.FieldEventType, "orphans_recovered"),
		)
	}

	d.pruneOutputs(d.ctx)
	d.startMirror(d.ctx)
	d.startEventStream()

	if err := d.api.start(d.ctx); err != nil {
		d.stopRelays()
		d.abortStart()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(d.ctx)
	}()

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("clipforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Duration("sweep_interval", d.cfg.SweepInterval()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	if d.cancel != nil {
		d.cancel()
	}
	_ = d.lock.Unlock()
	d.ctx, d.cancel = nil, nil
}

// pruneOutputs removes artifact directories whose job record is gone.
func (d *Daemon) pruneOutputs(ctx context.Context) {
	all, err := d.store.ListByStatus(ctx)
	if err != nil {
		d.logger.Warn("output cleanup skipped", logging.Error(err))
		return
	}
	known := make(map[string]struct{}, len(all))
	for _, job := range all {
		known[job.SessionID] = struct{}{}
	}
	result := outputs.CleanOrphaned(ctx, d.cfg.Paths.OutputDir, known, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("pruned orphaned outputs", logging.Int("count", len(result.Removed)))
	}
}

func (d *Daemon) startMirror(ctx context.Context) {
	if strings.TrimSpace(d.cfg.Redis.Addr) == "" {
		return
	}
	client, err := broadcast.DialRedis(ctx, d.cfg.Redis)
	if err != nil {
		logging.WarnWithContext(d.logger, "redis mirror disabled", "redis_unavailable",
			logging.String("addr", d.cfg.Redis.Addr),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis.addr or unset it to silence this warning"),
			logging.String(logging.FieldImpact, "progress is only streamed from this process"),
		)
		return
	}
	d.redisClient = client
	d.mirror = broadcast.NewRedisMirror(client, d.cfg.Redis, d.cfg.RedisTTL(), d.logger)
	d.manager.Broadcaster().AddRelay(d.mirror)
	d.logger.Info("redis progress mirror enabled",
		logging.String("addr", d.cfg.Redis.Addr),
		logging.String("channel", d.cfg.Redis.Channel),
	)
}

func (d *Daemon) startEventStream() {
	if len(d.cfg.Kafka.Brokers) == 0 {
		return
	}
	producer, err := broadcast.NewKafkaProducer(d.cfg.Kafka)
	if err != nil {
		logging.WarnWithContext(d.logger, "kafka event stream disabled", "kafka_unavailable",
			logging.String("brokers", strings.Join(d.cfg.Kafka.Brokers, ",")),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check kafka.brokers or clear it to silence this warning"),
			logging.String(logging.FieldImpact, "job lifecycle events are not published"),
		)
		return
	}
	d.producer = producer
	d.events = broadcast.NewKafkaRelay(producer, d.cfg.Kafka.Topic, d.logger)
	d.manager.Broadcaster().AddRelay(d.events)
	d.logger.Info("kafka event stream enabled",
		logging.String("topic", d.cfg.Kafka.Topic),
	)
}

func (d *Daemon) stopRelays() {
	if d.mirror != nil {
		d.mirror.Close()
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.logger.Debug("redis close failed", logging.Error(err))
		}
	}
	if d.events != nil {
		d.events.Close()
	}
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.logger.Debug("kafka producer close failed", logging.Error(err))
		}
	}
}

// Stop stops the API and monitor, shuts down running workers without
// writing terminal state, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.manager.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "workers did not stop in time", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "running jobs are recovered as interrupted on next start"),
		)
	}
	d.stopRelays()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("clipforge daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// LockPath returns the daemon lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	summary, err := d.manager.Summary(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	counts := make(map[string]int, len(summary.Counts))
	for status, n := range summary.Counts {
		counts[string(status)] = n
	}
	active := summary.Active
	if active == nil {
		active = []string{}
	}

	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		ActiveJobs:   active,
		Counts:       counts,
		Subscribers:  d.manager.Broadcaster().Entities(),
		RedisMirror:  d.mirror != nil,
		Dependencies: []api.DependencyStatus{},
	}
	if !d.startedAt.IsZero() {
		status.StartedAt = d.startedAt.UTC().Format(time.RFC3339)
	}
	if report, ok := d.monitor.LastSweep(); ok {
		converted := api.FromSweepReport(report)
		status.LastSweep = &converted
	}
	for _, dep := range d.checkDeps(ctx) {
		status.Dependencies = append(status.Dependencies, api.FromDependency(dep))
	}
	return status, nil
}
