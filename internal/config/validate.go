package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateEstimator(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxConcurrentPerUser < 1 {
		return errors.New("jobs.max_concurrent_per_user must be at least 1")
	}
	return nil
}

func (c *Config) validateEstimator() error {
	e := c.Estimator
	if e.FloorSeconds <= 0 {
		return errors.New("estimator.floor_seconds must be positive")
	}
	if e.CeilingSeconds < e.FloorSeconds {
		return fmt.Errorf("estimator.ceiling_seconds (%d) must be >= floor_seconds (%d)", e.CeilingSeconds, e.FloorSeconds)
	}
	if e.SafetyFactor < 1 {
		return errors.New("estimator.safety_factor must be >= 1")
	}
	if e.PerOperationSeconds < 0 || e.SizeSurchargePerGB < 0 || e.SizeThresholdGB < 0 || e.OverheadSeconds < 0 {
		return errors.New("estimator weights must not be negative")
	}
	for key, value := range e.TypeMultipliers {
		if value < 0 {
			return fmt.Errorf("estimator.type_multipliers.%s must not be negative", key)
		}
	}
	return nil
}

func (c *Config) validateHealth() error {
	h := c.Health
	if h.StallThreshold <= 0 {
		return errors.New("health.stall_threshold must be positive")
	}
	if h.RestartThreshold < h.StallThreshold {
		return fmt.Errorf("health.restart_threshold (%d) must be >= stall_threshold (%d)", h.RestartThreshold, h.StallThreshold)
	}
	if h.MaxRestarts < 0 {
		return errors.New("health.max_restarts must not be negative")
	}
	if h.MinProgressPercent < 0 || h.MinProgressPercent > 100 {
		return errors.New("health.min_progress_percent must be between 0 and 100")
	}
	if c.Estimator.CeilingSeconds <= h.RestartThreshold {
		return errors.New("estimator.ceiling_seconds must exceed health.restart_threshold")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
