package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// API contains the daemon HTTP surface settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Worker contains configuration for the external transcoder.
type Worker struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
}

// Jobs contains admission and persistence settings for the lifecycle manager.
type Jobs struct {
	MaxConcurrentPerUser    int `toml:"max_concurrent_per_user"`
	ProgressPersistInterval int `toml:"progress_persist_interval"`
}

// Estimator contains the complexity weights used to size job deadlines.
type Estimator struct {
	PerOperationSeconds float64            `toml:"per_operation_seconds"`
	OverheadSeconds     int                `toml:"overhead_seconds"`
	SafetyFactor        float64            `toml:"safety_factor"`
	SizeThresholdGB     float64            `toml:"size_threshold_gb"`
	SizeSurchargePerGB  float64            `toml:"size_surcharge_per_gb"`
	FloorSeconds        int                `toml:"floor_seconds"`
	CeilingSeconds      int                `toml:"ceiling_seconds"`
	TypeMultipliers     map[string]float64 `toml:"type_multipliers"`
}

// Health contains the health monitor sweep thresholds.
type Health struct {
	SweepInterval      int     `toml:"sweep_interval"`
	StallThreshold     int     `toml:"stall_threshold"`
	RestartThreshold   int     `toml:"restart_threshold"`
	PendingGrace       int     `toml:"pending_grace"`
	MaxRestarts        int     `toml:"max_restarts"`
	MinProgressPercent float64 `toml:"min_progress_percent"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Failures       bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Redis contains the optional progress mirror settings. An empty Addr
// disables the mirror.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	Channel    string `toml:"channel"`
	KeyPrefix  string `toml:"key_prefix"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Kafka contains the optional job lifecycle event relay. No brokers disables
// it.
type Kafka struct {
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	ClientID string   `toml:"client_id"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: job database, output, and log directories
//   - API: daemon bind address and bearer token
//   - Worker: transcoder binary and termination grace
//   - Jobs: per-user admission limit and progress persistence cadence
//   - Estimator: deadline complexity weights and bounds
//   - Health: sweep interval, stall/restart thresholds, restart budget
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Redis: optional progress mirror for other API replicas
//   - Kafka: optional job lifecycle event stream
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Worker        Worker        `toml:"worker"`
	Jobs          Jobs          `toml:"jobs"`
	Estimator     Estimator     `toml:"estimator"`
	Health        Health        `toml:"health"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Redis         Redis         `toml:"redis"`
	Kafka         Kafka         `toml:"kafka"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// Multipliers decode into a fresh map; normalizeEstimator fills in
		// the defaults for types the file leaves out.
		cfg.Estimator.TypeMultipliers = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite job database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "clipforge.lock")
}

// PIDPath returns the file the daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "clipforge.pid")
}

// KillGrace is the delay between SIGTERM and SIGKILL for a cancelled worker.
func (c *Config) KillGrace() time.Duration {
	return seconds(c.Worker.KillGraceSeconds)
}

// ProgressPersistInterval is the coalescing window for persisted progress.
func (c *Config) ProgressPersistInterval() time.Duration {
	return seconds(c.Jobs.ProgressPersistInterval)
}

// SweepInterval is the health monitor tick.
func (c *Config) SweepInterval() time.Duration {
	return seconds(c.Health.SweepInterval)
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return seconds(c.Notifications.RequestTimeout)
}

// RedisTTL is the expiry applied to mirrored progress snapshots.
func (c *Config) RedisTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
