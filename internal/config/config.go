// Package config holds the engine's configuration: server address, database
// path, provider credentials, delivery policy, logging, and metrics.
package config

import (
	"time"
)

// Config is the root configuration for the engine.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DBConfig       `mapstructure:"database" yaml:"database"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig contains the HTTP API settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DBConfig contains database configuration.
type DBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// ProviderConfig describes one LLM provider entry. API keys may use
// ${VAR_NAME} interpolation to pull from the environment.
type ProviderConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	APIKey       string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
}

// LLMConfig contains the provider registry configuration. Map keys are the
// service names workflow definitions use, e.g. "claude".
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// EngineConfig contains executor settings.
type EngineConfig struct {
	MaxSteps    int           `mapstructure:"max_steps" yaml:"max_steps"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// DeliveryConfig contains callback delivery settings.
type DeliveryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig contains metrics export configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DBConfig{
			Path:           "aaa.db",
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		LLM: LLMConfig{
			Providers: map[string]ProviderConfig{},
		},
		Engine: EngineConfig{
			MaxSteps:    1000,
			HTTPTimeout: 30 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxAttempts: 5,
			RetryDelay:  2 * time.Second,
			Timeout:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
