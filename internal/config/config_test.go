package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "aaa.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Delivery.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Delivery.RetryDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadProviders(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test-123")

	path := writeConfig(t, `
llm:
  providers:
    claude:
      type: anthropic
      api_key: ${TEST_ANTHROPIC_KEY}
      default_model: claude-3-5-haiku-20241022
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	claude, ok := cfg.LLM.Providers["claude"]
	require.True(t, ok)
	assert.Equal(t, "anthropic", claude.Type)
	assert.Equal(t, "sk-test-123", claude.APIKey)
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadWithDefaultsEnvOverride(t *testing.T) {
	t.Setenv("AAA_DATABASE_PATH", "/tmp/override.db")

	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "empty db path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "zero attempts", mutate: func(c *Config) { c.Delivery.MaxAttempts = 0 }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "provider without type", mutate: func(c *Config) {
			c.LLM.Providers = map[string]ProviderConfig{"claude": {}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
