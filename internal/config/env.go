package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces the environment fallbacks (CLIPFORGE_API_TOKEN, ...).
const envPrefix = "clipforge"

// envFallbacks are deployment secrets and endpoints that may come from the
// environment instead of the config file. A value set in the file wins.
type envFallbacks struct {
	APIToken      string   `envconfig:"API_TOKEN"`
	NtfyTopic     string   `envconfig:"NTFY_TOPIC"`
	RedisAddr     string   `envconfig:"REDIS_ADDR"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
}

func (c *Config) applyEnvFallbacks() error {
	var env envFallbacks
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fill(&c.API.Token, env.APIToken)
	fill(&c.Notifications.NtfyTopic, env.NtfyTopic)
	fill(&c.Redis.Addr, env.RedisAddr)
	fill(&c.Redis.Password, env.RedisPassword)
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	return nil
}

func fill(dst *string, value string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = strings.TrimSpace(value)
	}
}
