package config

const (
	defaultDataDir                 = "~/.local/share/clipforge"
	defaultOutputDir               = "~/.local/share/clipforge/outputs"
	defaultLogDir                  = "~/.local/share/clipforge/logs"
	defaultAPIBind                 = "127.0.0.1:7591"
	defaultFFmpegBinary            = "ffmpeg"
	defaultKillGraceSeconds        = 5
	defaultMaxConcurrentPerUser    = 3
	defaultProgressPersistInterval = 2
	defaultEstimatorPerOperation   = 20.0
	defaultEstimatorOverhead       = 15
	defaultEstimatorSafetyFactor   = 2.0
	defaultEstimatorSizeThreshold  = 2.0
	defaultEstimatorSizeSurcharge  = 30.0
	defaultEstimatorFloor          = 60
	defaultEstimatorCeiling        = 7200
	defaultSweepInterval           = 30
	defaultStallThreshold          = 90
	defaultRestartThreshold        = 180
	defaultPendingGrace            = 30
	defaultMaxRestarts             = 2
	defaultMinProgressPercent      = 1.0
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultRedisChannel            = "clipforge:progress"
	defaultRedisKeyPrefix          = "clipforge:progress:"
	defaultRedisTTLSeconds         = 3600
	defaultKafkaTopic              = "clipforge.job-events"
	defaultKafkaClientID           = "clipforge"
)

// defaultTypeMultipliers are seconds of work per second of source media for
// each export type.
func defaultTypeMultipliers() map[string]float64 {
	return map[string]float64{
		"cut":              0.5,
		"animated_preview": 1.5,
		"still":            0.05,
		"loop":             1.0,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Worker: Worker{
			FFmpegBinary:     defaultFFmpegBinary,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Jobs: Jobs{
			MaxConcurrentPerUser:    defaultMaxConcurrentPerUser,
			ProgressPersistInterval: defaultProgressPersistInterval,
		},
		Estimator: Estimator{
			PerOperationSeconds: defaultEstimatorPerOperation,
			OverheadSeconds:     defaultEstimatorOverhead,
			SafetyFactor:        defaultEstimatorSafetyFactor,
			SizeThresholdGB:     defaultEstimatorSizeThreshold,
			SizeSurchargePerGB:  defaultEstimatorSizeSurcharge,
			FloorSeconds:        defaultEstimatorFloor,
			CeilingSeconds:      defaultEstimatorCeiling,
			TypeMultipliers:     defaultTypeMultipliers(),
		},
		Health: Health{
			SweepInterval:      defaultSweepInterval,
			StallThreshold:     defaultStallThreshold,
			RestartThreshold:   defaultRestartThreshold,
			PendingGrace:       defaultPendingGrace,
			MaxRestarts:        defaultMaxRestarts,
			MinProgressPercent: defaultMinProgressPercent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Failures:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Redis: Redis{
			Channel:    defaultRedisChannel,
			KeyPrefix:  defaultRedisKeyPrefix,
			TTLSeconds: defaultRedisTTLSeconds,
		},
		Kafka: Kafka{
			Topic:    defaultKafkaTopic,
			ClientID: defaultKafkaClientID,
		},
	}
}
