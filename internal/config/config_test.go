package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AGENDA_DATABASE__URL", "postgres://localhost/agenda")
	t.Setenv("AGENDA_DELIVERY__WEBHOOK__ENDPOINT", "https://gateway.example.com/send")
	t.Setenv("AGENDA_DELIVERY__WEBHOOK__TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "webhook", cfg.Delivery.Strategy)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Queue.BaseDelay)
	assert.Equal(t, 8*60, cfg.Schedule.OpenMinute)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	content := `
server:
  port: "9000"
database:
  url: postgres://localhost/agenda
  max_open_conns: 25
log:
  level: debug
  format: text
delivery:
  strategy: session
  session:
    url: wss://gateway.example.com/session
    min_send_interval: 2s
queue:
  max_attempts: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "session", cfg.Delivery.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Delivery.Session.MinSendInterval)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)

	// Unset values keep their defaults.
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Minute, cfg.Queue.MaxDelay)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	content := `
database:
  url: postgres://localhost/agenda
delivery:
  strategy: webhook
  webhook:
    endpoint: https://file.example.com
    token: file-token
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("AGENDA_DELIVERY__WEBHOOK__TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Delivery.Webhook.Token)
	assert.Equal(t, "https://file.example.com", cfg.Delivery.Webhook.Endpoint)
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := Default()

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestValidate_WebhookCredentials(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/agenda"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.webhook.endpoint")

	cfg.Delivery.Webhook.Endpoint = "https://gateway.example.com/send"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.webhook.token")

	cfg.Delivery.Webhook.Token = "secret"
	require.NoError(t, cfg.Validate())
}

func TestValidate_SessionStrategy(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/agenda"
	cfg.Delivery.Strategy = "session"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.session.url")

	cfg.Delivery.Session.URL = "wss://gateway.example.com/session"
	require.NoError(t, cfg.Validate())
}

func TestValidate_UnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/agenda"
	cfg.Delivery.Strategy = "carrier-pigeon"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown delivery strategy")
}

func TestValidate_ScheduleWindow(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/agenda"
	cfg.Delivery.Webhook.Endpoint = "https://gateway.example.com/send"
	cfg.Delivery.Webhook.Token = "secret"
	cfg.Schedule.OpenMinute = 18 * 60
	cfg.Schedule.CloseMinute = 8 * 60

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "open_minute")
}
