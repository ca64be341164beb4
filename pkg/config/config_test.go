package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WARDEN_POSTGRES_URL", "postgres://localhost/warden_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.InactivityWindow)
	assert.Equal(t, 90*24*time.Hour, cfg.Session.RetentionWindow)
	assert.Equal(t, "*/15 * * * *", cfg.Session.SweepSchedule)
	assert.Equal(t, 500, cfg.Session.SweepBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WARDEN_POSTGRES_URL", "postgres://db:5432/warden")
	t.Setenv("WARDEN_PORT", "9999")
	t.Setenv("WARDEN_SESSION_TTL", "2h")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")
	t.Setenv("WARDEN_METRICS_ENABLED", "false")
	t.Setenv("WARDEN_REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://x", MaxConns: 10},
			Session: SessionConfig{
				TTL:              time.Hour,
				InactivityWindow: 30 * 24 * time.Hour,
				RetentionWindow:  90 * 24 * time.Hour,
				SweepBatchSize:   100,
			},
		}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Database.URL = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Session.TTL = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Session.RetentionWindow = time.Hour
	assert.Error(t, c.Validate(), "retention shorter than inactivity window")

	c = base()
	c.Notifications.WebhookSecret = "s"
	assert.Error(t, c.Validate(), "secret without URL")
}

func TestBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("WARDEN_POSTGRES_URL", "postgres://localhost/warden")
	t.Setenv("WARDEN_SESSION_TTL", "not-a-duration")
	t.Setenv("WARDEN_POSTGRES_MAX_CONNS", "many")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 20, cfg.Database.MaxConns)
}
