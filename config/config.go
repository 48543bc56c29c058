package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	ReservationTopic   string   `yaml:"reservation_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes          int `yaml:"hold_ttl_minutes"`
	MinAdvanceHours         int `yaml:"min_advance_hours"`
	CalendarCacheTTLSeconds int `yaml:"calendar_cache_ttl_seconds"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

// WebhookConfig bounds retries of failed gateway events. The delay between
// attempts doubles per retry, capped at RetryBackoffCapSeconds.
type WebhookConfig struct {
	MaxRetries             int `yaml:"max_retries"`
	RetryBackoffSeconds    int `yaml:"retry_backoff_seconds"`
	RetryBackoffCapSeconds int `yaml:"retry_backoff_cap_seconds"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	WebhookSweepMinutes    int `yaml:"webhook_sweep_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if pw := os.Getenv("DATABASE_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = 30
	}
	if c.Booking.CalendarCacheTTLSeconds == 0 {
		c.Booking.CalendarCacheTTLSeconds = 60
	}
	if c.Webhook.MaxRetries == 0 {
		c.Webhook.MaxRetries = 5
	}
	if c.Webhook.RetryBackoffSeconds == 0 {
		c.Webhook.RetryBackoffSeconds = 30
	}
	if c.Webhook.RetryBackoffCapSeconds == 0 {
		c.Webhook.RetryBackoffCapSeconds = 3600
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 5
	}
	if c.Worker.WebhookSweepMinutes == 0 {
		c.Worker.WebhookSweepMinutes = 1
	}
}
