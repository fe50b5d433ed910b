package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"clipforge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CLIPFORGE_API_TOKEN", "")
	t.Setenv("CLIPFORGE_REDIS_ADDR", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "clipforge")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "jobs.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:7591" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Jobs.MaxConcurrentPerUser != 3 {
		t.Fatalf("unexpected per-user limit: %d", cfg.Jobs.MaxConcurrentPerUser)
	}
	if cfg.ProgressPersistInterval() != 2*time.Second {
		t.Fatalf("unexpected persist interval: %s", cfg.ProgressPersistInterval())
	}
	if cfg.Health.StallThreshold != 90 || cfg.Health.RestartThreshold != 180 {
		t.Fatalf("unexpected health thresholds: %+v", cfg.Health)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected redis mirror disabled by default, got %q", cfg.Redis.Addr)
	}
	if got := cfg.Estimator.TypeMultipliers["animated_preview"]; got != 1.5 {
		t.Fatalf("unexpected preview multiplier: %v", got)
	}
}

func TestLoadReadsTOMLAndEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLIPFORGE_API_TOKEN", "env-token")
	t.Setenv("CLIPFORGE_REDIS_ADDR", "127.0.0.1:6379")

	dir := t.TempDir()
	path := filepath.Join(dir, "clipforge.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":   filepath.Join(dir, "data"),
			"output_dir": filepath.Join(dir, "out"),
		},
		"jobs": map[string]any{
			"max_concurrent_per_user": 5,
		},
		"estimator": map[string]any{
			"type_multipliers": map[string]any{"Cut": 0.9},
		},
		"logging": map[string]any{
			"format": " JSON ",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Jobs.MaxConcurrentPerUser != 5 {
		t.Fatalf("expected per-user limit 5, got %d", cfg.Jobs.MaxConcurrentPerUser)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
	if cfg.API.Token != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.API.Token)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("expected redis addr from env, got %q", cfg.Redis.Addr)
	}
	if got := cfg.Estimator.TypeMultipliers["cut"]; got != 0.9 {
		t.Fatalf("expected lower-cased cut multiplier 0.9, got %v", got)
	}
	if got := cfg.Estimator.TypeMultipliers["still"]; got != 0.05 {
		t.Fatalf("expected default still multiplier preserved, got %v", got)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "restart below stall",
			mutate: func(c *config.Config) { c.Health.RestartThreshold = c.Health.StallThreshold - 1 },
			want:   "restart_threshold",
		},
		{
			name:   "ceiling below floor",
			mutate: func(c *config.Config) { c.Estimator.CeilingSeconds = c.Estimator.FloorSeconds - 1 },
			want:   "ceiling_seconds",
		},
		{
			name:   "zero admission limit",
			mutate: func(c *config.Config) { c.Jobs.MaxConcurrentPerUser = 0 },
			want:   "max_concurrent_per_user",
		},
		{
			name:   "unknown log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Health.MaxRestarts != 2 {
		t.Fatalf("unexpected max restarts from sample: %d", cfg.Health.MaxRestarts)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestEnvFallbacksNeverOverrideFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLIPFORGE_API_TOKEN", "env-token")
	t.Setenv("CLIPFORGE_KAFKA_BROKERS", "k1:9092, k2:9092")

	dir := t.TempDir()
	path := filepath.Join(dir, "clipforge.toml")
	data := []byte("[paths]\ndata_dir = \"" + filepath.Join(dir, "data") + "\"\n\n[api]\ntoken = \"file-token\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "file-token" {
		t.Fatalf("expected file token to win, got %q", cfg.API.Token)
	}
	if got := strings.Join(cfg.Kafka.Brokers, ","); got != "k1:9092,k2:9092" {
		t.Fatalf("expected trimmed brokers from env, got %q", got)
	}
	if cfg.Kafka.Topic != "clipforge.job-events" {
		t.Fatalf("expected default kafka topic, got %q", cfg.Kafka.Topic)
	}
}

func TestLoadFoldsMultiplierKeysDeterministically(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "clipforge.toml")
	data := []byte("[paths]\ndata_dir = \"" + filepath.Join(dir, "data") + "\"\n\n" +
		"[estimator.type_multipliers]\nCut = 0.9\ncut = 0.7\nLOOP = 2.5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	for i := 0; i < 20; i++ {
		cfg, _, _, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		got := cfg.Estimator.TypeMultipliers
		if got["cut"] != 0.7 {
			t.Fatalf("run %d: expected canonical cut key to win with 0.7, got %v", i, got["cut"])
		}
		if got["loop"] != 2.5 {
			t.Fatalf("run %d: expected folded loop multiplier 2.5, got %v", i, got["loop"])
		}
		if _, ok := got["Cut"]; ok {
			t.Fatalf("run %d: expected only lower-case keys, got %v", i, got)
		}
		if got["still"] != 0.05 {
			t.Fatalf("run %d: expected default still multiplier, got %v", i, got["still"])
		}
	}
}
