package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Debug         DebugConfig         `yaml:"debug"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// RealtimeConfig contains connection client settings
type RealtimeConfig struct {
	// WebSocket endpoint of the marketplace event gateway
	Endpoint string `yaml:"endpoint"`

	// Reconnection policy
	ReconnectInitialDelayMs int `yaml:"reconnect_initial_delay_ms"`
	ReconnectMaxDelayMs     int `yaml:"reconnect_max_delay_ms"`
	ReconnectMaxAttempts    int `yaml:"reconnect_max_attempts"`

	// Handshake timeout for a single dial
	DialTimeoutMs int `yaml:"dial_timeout_ms"`

	// Outbound write deadline
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

// NotificationsConfig contains notification orchestrator settings
type NotificationsConfig struct {
	// Maximum in-memory notification records kept for the session
	HistoryLimit int `yaml:"history_limit"`

	// Size of the seen-event-id cache used to drop server redeliveries
	DedupeCacheSize int `yaml:"dedupe_cache_size"`
}

// DebugConfig contains the local debug/metrics HTTP server settings
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			Endpoint:                "ws://localhost:9400/events",
			ReconnectInitialDelayMs: 1000,
			ReconnectMaxDelayMs:     5000,
			ReconnectMaxAttempts:    5,
			DialTimeoutMs:           10000,
			WriteTimeoutMs:          5000,
		},
		Notifications: NotificationsConfig{
			HistoryLimit:    200,
			DedupeCacheSize: 512,
		},
		Debug: DebugConfig{
			Enabled: true,
			Addr:    ":9401",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			GlobalFields:  map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// ReconnectInitialDelay returns the initial reconnect backoff as a duration.
func (c RealtimeConfig) ReconnectInitialDelay() time.Duration {
	return time.Duration(c.ReconnectInitialDelayMs) * time.Millisecond
}

// ReconnectMaxDelay returns the reconnect backoff cap as a duration.
func (c RealtimeConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.ReconnectMaxDelayMs) * time.Millisecond
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, endpoint string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Override with command line flags (highest priority)
	if endpoint != "" {
		config.Realtime.Endpoint = endpoint
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if endpoint := os.Getenv("PATIENTRT_REALTIME_ENDPOINT"); endpoint != "" {
		config.Realtime.Endpoint = endpoint
	}
	if attemptsStr := os.Getenv("PATIENTRT_REALTIME_RECONNECT_MAX_ATTEMPTS"); attemptsStr != "" {
		if val, err := strconv.Atoi(attemptsStr); err == nil {
			config.Realtime.ReconnectMaxAttempts = val
		}
	}
	if historyStr := os.Getenv("PATIENTRT_NOTIFICATIONS_HISTORY_LIMIT"); historyStr != "" {
		if val, err := strconv.Atoi(historyStr); err == nil {
			config.Notifications.HistoryLimit = val
		}
	}
	if addr := os.Getenv("PATIENTRT_DEBUG_ADDR"); addr != "" {
		config.Debug.Addr = addr
	}
	if level := os.Getenv("PATIENTRT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PATIENTRT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}
