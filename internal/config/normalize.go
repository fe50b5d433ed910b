package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.applyEnvFallbacks(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeWorker()
	c.normalizeJobs()
	c.normalizeEstimator()
	c.normalizeHealth()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeRedis()
	c.normalizeKafka()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeWorker() {
	c.Worker.FFmpegBinary = strings.TrimSpace(c.Worker.FFmpegBinary)
	if c.Worker.FFmpegBinary == "" {
		c.Worker.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Worker.KillGraceSeconds <= 0 {
		c.Worker.KillGraceSeconds = defaultKillGraceSeconds
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.ProgressPersistInterval <= 0 {
		c.Jobs.ProgressPersistInterval = defaultProgressPersistInterval
	}
}

func (c *Config) normalizeEstimator() {
	if c.Estimator.TypeMultipliers == nil {
		c.Estimator.TypeMultipliers = defaultTypeMultipliers()
		return
	}
	// Keys are folded in sorted order and an already canonical key applied
	// last, so "Cut" and "cut" in one file always resolve the same way.
	keys := slices.Sorted(maps.Keys(c.Estimator.TypeMultipliers))
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmpBool(isCanonicalKey(a), isCanonicalKey(b))
	})
	normalized := make(map[string]float64, len(keys))
	for _, key := range keys {
		normalized[strings.ToLower(strings.TrimSpace(key))] = c.Estimator.TypeMultipliers[key]
	}
	for key, value := range defaultTypeMultipliers() {
		if _, ok := normalized[key]; !ok {
			normalized[key] = value
		}
	}
	c.Estimator.TypeMultipliers = normalized
}

func isCanonicalKey(key string) bool {
	return key == strings.ToLower(strings.TrimSpace(key))
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func (c *Config) normalizeHealth() {
	if c.Health.SweepInterval <= 0 {
		c.Health.SweepInterval = defaultSweepInterval
	}
	if c.Health.PendingGrace <= 0 {
		c.Health.PendingGrace = defaultPendingGrace
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Redis.Channel = strings.TrimSpace(c.Redis.Channel)
	if c.Redis.Channel == "" {
		c.Redis.Channel = defaultRedisChannel
	}
	if strings.TrimSpace(c.Redis.KeyPrefix) == "" {
		c.Redis.KeyPrefix = defaultRedisKeyPrefix
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = defaultRedisTTLSeconds
	}
}

func (c *Config) normalizeKafka() {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, broker := range c.Kafka.Brokers {
		for _, part := range strings.Split(broker, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	c.Kafka.Brokers = brokers
	c.Kafka.Topic = strings.TrimSpace(c.Kafka.Topic)
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
	c.Kafka.ClientID = strings.TrimSpace(c.Kafka.ClientID)
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = defaultKafkaClientID
	}
}
