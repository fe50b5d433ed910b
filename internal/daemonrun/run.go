package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/deps"
	"clipforge/internal/health"
	"clipforge/internal/jobs"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/transcode"
	"clipforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Runner replaces the FFmpeg runner; used by tests.
	Runner transcode.Runner
	// Ready receives the API address once the daemon accepts requests and
	// is then closed. It must be buffered.
	Ready chan<- string
}

// Run starts the clipforge daemon and blocks until SIGINT, SIGTERM or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logDependencySnapshot(signalCtx, logger, cfg)

	store, err := jobs.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job store failed", "job_store_open_failed",
			logging.Error(err),
			logging.String("path", cfg.DatabasePath()),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return err
	}
	defer store.Close()

	runner := opts.Runner
	if runner == nil {
		ffmpeg, err := transcode.NewFFmpeg(cfg.Worker.FFmpegBinary, cfg.KillGrace())
		if err != nil {
			return fmt.Errorf("create ffmpeg runner: %w", err)
		}
		runner = ffmpeg
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, runner, logger, workflow.WithNotifier(notifier))
	monitor := health.NewMonitor(cfg, store, manager, manager.Estimator().Ceiling(), logger)

	d, err := daemon.New(cfg, store, manager, monitor, logger, daemon.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind and that no other daemon holds the lock"),
			logging.String(logging.FieldImpact, "no jobs will be accepted"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		logging.WarnWithContext(logger, "write pid file failed", "pid_file_failed",
			logging.Error(err),
			logging.String("path", pidPath),
			logging.String(logging.FieldImpact, "clipforge stop falls back to the API-reported pid"),
		)
	}
	defer os.Remove(pidPath)

	if opts.Ready != nil {
		opts.Ready <- d.Addr()
		close(opts.Ready)
	}

	<-signalCtx.Done()
	logger.Info("clipforge daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	status := deps.CheckFFmpeg(ctx, cfg.Worker.FFmpegBinary)
	attrs := []logging.Attr{
		logging.Bool("ffmpeg_available", status.Available),
		logging.String("ffmpeg_binary", cfg.Worker.FFmpegBinary),
		logging.String("ffmpeg_detail", status.Detail),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("redis_mirror", strings.TrimSpace(cfg.Redis.Addr) != ""),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.API.Token) != ""),
	}
	if !status.Available {
		logging.WarnWithContext(logger, "ffmpeg unavailable", "dependency_missing",
			append(attrs,
				logging.String(logging.FieldErrorHint, "install ffmpeg or set worker.ffmpeg_binary"),
				logging.String(logging.FieldImpact, "every job will fail when its worker starts"),
			)...,
		)
		return
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
