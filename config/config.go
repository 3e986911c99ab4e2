package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/* Config is loaded from the environment with an optional .env file
 * The pipeline's numeric policy (retries, backoff, retention) is
 * configuration, never derived in code
 */

type Config struct {
	Port          string `mapstructure:"PORT"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	ProvidersFile string `mapstructure:"PROVIDERS_FILE"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	EventTopic   string `mapstructure:"EVENT_TOPIC"`

	Workers               int    `mapstructure:"WORKERS"`
	MaxRetries            int    `mapstructure:"MAX_RETRIES"`
	RetryBackoff          string `mapstructure:"RETRY_BACKOFF"`
	HandlerTimeoutSeconds int    `mapstructure:"HANDLER_TIMEOUT_SECONDS"`
	MaxBodyBytes          int64  `mapstructure:"MAX_BODY_BYTES"`

	IdempotencyTTLHours int `mapstructure:"IDEMPOTENCY_TTL_HOURS"`
	CompletedTTLHours   int `mapstructure:"COMPLETED_TTL_HOURS"`
	FailedTTLHours      int `mapstructure:"FAILED_TTL_HOURS"`

	MetricsPort            string  `mapstructure:"METRICS_PORT"`
	MonitorIntervalSeconds int     `mapstructure:"MONITOR_INTERVAL_SECONDS"`
	MonitorWindowMinutes   int     `mapstructure:"MONITOR_WINDOW_MINUTES"`
	AlertErrorRate         float64 `mapstructure:"ALERT_ERROR_RATE"`
	AlertLatencyMS         int64   `mapstructure:"ALERT_LATENCY_MS"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PROVIDERS_FILE", "providers.yaml")
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("EVENT_TOPIC", "webhook.events")
	viper.SetDefault("WORKERS", 4)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_BACKOFF", "5s,30s,300s")
	viper.SetDefault("HANDLER_TIMEOUT_SECONDS", 30)
	viper.SetDefault("MAX_BODY_BYTES", 1048576)
	viper.SetDefault("IDEMPOTENCY_TTL_HOURS", 24)
	viper.SetDefault("COMPLETED_TTL_HOURS", 72)
	viper.SetDefault("FAILED_TTL_HOURS", 168)
	viper.SetDefault("METRICS_PORT", "9090")
	viper.SetDefault("MONITOR_INTERVAL_SECONDS", 60)
	viper.SetDefault("MONITOR_WINDOW_MINUTES", 15)
	viper.SetDefault("ALERT_ERROR_RATE", 0.1)
	viper.SetDefault("ALERT_LATENCY_MS", 5000)

	// The .env file is optional; the environment alone is enough
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// Brokers splits the comma-separated Kafka broker list
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

// Backoff parses the comma-separated retry backoff schedule
func (c *Config) Backoff() ([]time.Duration, error) {
	parts := strings.Split(c.RetryBackoff, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parsing backoff entry %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("backoff entries must be positive, got %q", part)
		}
		schedule = append(schedule, d)
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("retry backoff schedule is empty")
	}
	return schedule, nil
}
