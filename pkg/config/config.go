package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Catalog       CatalogConfig
	Notifications NotificationConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RedisConfig holds the cache/pubsub connection settings. An empty
// Addr disables both the session cache and the redis notification sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// SessionConfig tunes the session lifecycle and retention sweep.
type SessionConfig struct {
	TTL              time.Duration
	InactivityWindow time.Duration
	RetentionWindow  time.Duration
	SweepSchedule    string
	SweepBatchSize   int
}

// CatalogConfig points at the optional role overrides file.
type CatalogConfig struct {
	OverridesPath string
}

// NotificationConfig holds the optional webhook sink settings.
type NotificationConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
			Port:            getEnv("WARDEN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("WARDEN_POSTGRES_URL", ""),
			MaxConns: getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("WARDEN_REDIS_ADDR", ""),
			Password: getEnv("WARDEN_REDIS_PASSWORD", ""),
			DB:       getEnvInt("WARDEN_REDIS_DB", 0),
			CacheTTL: getEnvDuration("WARDEN_SESSION_CACHE_TTL", 30*time.Second),
		},
		Session: SessionConfig{
			TTL:              getEnvDuration("WARDEN_SESSION_TTL", 24*time.Hour),
			InactivityWindow: getEnvDuration("WARDEN_SESSION_INACTIVITY_WINDOW", 30*24*time.Hour),
			RetentionWindow:  getEnvDuration("WARDEN_SESSION_RETENTION_WINDOW", 90*24*time.Hour),
			SweepSchedule:    getEnv("WARDEN_SWEEP_SCHEDULE", "*/15 * * * *"),
			SweepBatchSize:   getEnvInt("WARDEN_SWEEP_BATCH_SIZE", 500),
		},
		Catalog: CatalogConfig{
			OverridesPath: getEnv("WARDEN_ROLE_OVERRIDES", ""),
		},
		Notifications: NotificationConfig{
			WebhookURL:    getEnv("WARDEN_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("WARDEN_WEBHOOK_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("WARDEN_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("WARDEN_POSTGRES_URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("WARDEN_POSTGRES_MAX_CONNS must be at least 1")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("WARDEN_SESSION_TTL must be positive")
	}
	if c.Session.InactivityWindow <= 0 || c.Session.RetentionWindow <= 0 {
		return fmt.Errorf("session windows must be positive")
	}
	if c.Session.RetentionWindow < c.Session.InactivityWindow {
		return fmt.Errorf("retention window must not be shorter than the inactivity window")
	}
	if c.Session.SweepBatchSize < 1 {
		return fmt.Errorf("WARDEN_SWEEP_BATCH_SIZE must be at least 1")
	}
	if c.Notifications.WebhookURL == "" && c.Notifications.WebhookSecret != "" {
		return fmt.Errorf("WARDEN_WEBHOOK_SECRET set without WARDEN_WEBHOOK_URL")
	}
	return nil
}

// Addr returns the main listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// HealthAddr returns the health/metrics listen address.
func (c ServerConfig) HealthAddr() string {
	return c.Host + ":" + c.HealthPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
