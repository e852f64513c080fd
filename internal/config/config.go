// Package config loads and validates application configuration from an
// optional YAML file and AGENDA_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AGENDA_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Delivery DeliveryConfig `koanf:"delivery"`
	Queue    QueueConfig    `koanf:"queue"`
	Redis    RedisConfig    `koanf:"redis"`
	Schedule ScheduleConfig `koanf:"schedule"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DeliveryConfig selects and configures the outbound provider.
type DeliveryConfig struct {
	// Strategy is "webhook" or "session".
	Strategy string `koanf:"strategy"`

	Webhook WebhookConfig `koanf:"webhook"`
	Session SessionConfig `koanf:"session"`
}

// WebhookConfig contains the stateless HTTP gateway settings.
type WebhookConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Token    string        `koanf:"token"`
	Timeout  time.Duration `koanf:"timeout"`
}

// SessionConfig contains the persistent gateway session settings.
type SessionConfig struct {
	URL             string        `koanf:"url"`
	Token           string        `koanf:"token"`
	MinSendInterval time.Duration `koanf:"min_send_interval"`
	AckTimeout      time.Duration `koanf:"ack_timeout"`
}

// QueueConfig contains queue processing settings.
type QueueConfig struct {
	TickInterval  time.Duration `koanf:"tick_interval"`
	BatchSize     int           `koanf:"batch_size"`
	MaxAttempts   int           `koanf:"max_attempts"`
	BaseDelay     time.Duration `koanf:"base_delay"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	StuckAfter    time.Duration `koanf:"stuck_after"`
	RetainSentFor time.Duration `koanf:"retain_sent_for"`
	MaintainEvery time.Duration `koanf:"maintain_every"`
}

// RedisConfig contains the idempotency store settings. Disabled means
// enqueue requests are not deduplicated.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// ScheduleConfig contains business-hours settings for slot suggestion.
type ScheduleConfig struct {
	OpenMinute  int `koanf:"open_minute"`
	CloseMinute int `koanf:"close_minute"`

	// HalfDayWeekday closes earlier on one weekday; -1 disables it.
	HalfDayWeekday     int `koanf:"half_day_weekday"`
	HalfDayCloseMinute int `koanf:"half_day_close_minute"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectAttempts: 5,
			ConnectTimeout:  time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Delivery: DeliveryConfig{
			Strategy: "webhook",
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
			Session: SessionConfig{
				MinSendInterval: time.Second,
				AckTimeout:      15 * time.Second,
			},
		},
		Queue: QueueConfig{
			TickInterval:  time.Minute,
			BatchSize:     50,
			MaxAttempts:   3,
			BaseDelay:     30 * time.Second,
			MaxDelay:      30 * time.Minute,
			StuckAfter:    10 * time.Minute,
			RetainSentFor: 30 * 24 * time.Hour,
			MaintainEvery: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Schedule: ScheduleConfig{
			OpenMinute:     8 * 60,
			CloseMinute:    18 * 60,
			HalfDayWeekday: -1,
		},
	}
}

// Load reads configuration from the YAML file at path (optional, pass ""
// to skip) and AGENDA_ environment variables, layered over defaults.
// Environment keys use double underscores as section separators, e.g.
// AGENDA_DATABASE__URL maps to database.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings the application cannot start without.
// Provider credentials are verified here so a misconfigured deployment
// fails at startup instead of failing every dispatch.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}

	switch c.Delivery.Strategy {
	case "webhook":
		if c.Delivery.Webhook.Endpoint == "" {
			return errors.New("config: delivery.webhook.endpoint is required for the webhook strategy")
		}
		if c.Delivery.Webhook.Token == "" {
			return errors.New("config: delivery.webhook.token is required for the webhook strategy")
		}
	case "session":
		if c.Delivery.Session.URL == "" {
			return errors.New("config: delivery.session.url is required for the session strategy")
		}
	default:
		return fmt.Errorf("config: unknown delivery strategy %q", c.Delivery.Strategy)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required when redis is enabled")
	}

	if c.Schedule.OpenMinute >= c.Schedule.CloseMinute {
		return errors.New("config: schedule.open_minute must be before schedule.close_minute")
	}
	if c.Schedule.HalfDayWeekday >= 0 {
		if c.Schedule.HalfDayWeekday > 6 {
			return errors.New("config: schedule.half_day_weekday must be 0 (Sunday) through 6 (Saturday)")
		}
		if c.Schedule.HalfDayCloseMinute <= c.Schedule.OpenMinute {
			return errors.New("config: schedule.half_day_close_minute must be after schedule.open_minute")
		}
	}

	return nil
}
