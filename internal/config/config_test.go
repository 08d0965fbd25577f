package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Reconnection defaults match the gateway contract.
	assert.Equal(t, 1000, cfg.Realtime.ReconnectInitialDelayMs)
	assert.Equal(t, 5000, cfg.Realtime.ReconnectMaxDelayMs)
	assert.Equal(t, 5, cfg.Realtime.ReconnectMaxAttempts)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectInitialDelay())
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconnectMaxDelay())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Greater(t, cfg.Notifications.HistoryLimit, 0)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
realtime:
  endpoint: wss://gateway.example.com/events
  reconnect_max_attempts: 3
notifications:
  history_limit: 50
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://gateway.example.com/events", cfg.Realtime.Endpoint)
	assert.Equal(t, 3, cfg.Realtime.ReconnectMaxAttempts)
	assert.Equal(t, 50, cfg.Notifications.HistoryLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values absent from the file keep their defaults.
	assert.Equal(t, 1000, cfg.Realtime.ReconnectInitialDelayMs)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Realtime.Endpoint, cfg.Realtime.Endpoint)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("realtime: ["), 0644))

	_, err := LoadConfigFromFile(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PATIENTRT_REALTIME_ENDPOINT", "wss://env.example.com/events")
	t.Setenv("PATIENTRT_REALTIME_RECONNECT_MAX_ATTEMPTS", "7")
	t.Setenv("PATIENTRT_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", "", "")
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/events", cfg.Realtime.Endpoint)
	assert.Equal(t, 7, cfg.Realtime.ReconnectMaxAttempts)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestFlagOverridesBeatEnv(t *testing.T) {
	t.Setenv("PATIENTRT_REALTIME_ENDPOINT", "wss://env.example.com/events")

	cfg, err := LoadConfig("", "wss://flag.example.com/events", "error")
	require.NoError(t, err)

	assert.Equal(t, "wss://flag.example.com/events", cfg.Realtime.Endpoint)
	assert.Equal(t, "error", cfg.Logging.Level)
}
