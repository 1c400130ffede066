package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/zenovak/2100-AAA/internal/types"
)

// envVarPattern matches ${VAR_NAME} references inside config values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from the given yaml file, applies AAA_* env
// overrides and ${VAR} interpolation, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	return unmarshal(v)
}

// LoadWithDefaults behaves like Load but falls back to the default
// configuration when the file does not exist.
func LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := DefaultConfig()
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("database.max_connections", defaults.Database.MaxConnections)
	v.SetDefault("database.busy_timeout", defaults.Database.BusyTimeout)
	v.SetDefault("engine.max_steps", defaults.Engine.MaxSteps)
	v.SetDefault("engine.http_timeout", defaults.Engine.HTTPTimeout)
	v.SetDefault("delivery.max_attempts", defaults.Delivery.MaxAttempts)
	v.SetDefault("delivery.retry_delay", defaults.Delivery.RetryDelay)
	v.SetDefault("delivery.timeout", defaults.Delivery.Timeout)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)

	v.SetEnvPrefix("AAA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
			"failed to unmarshal config", err)
	}

	interpolate(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// interpolate expands ${VAR_NAME} references in provider credentials.
func interpolate(cfg *Config) {
	for name, provider := range cfg.LLM.Providers {
		provider.APIKey = expandEnv(provider.APIKey)
		provider.BaseURL = expandEnv(provider.BaseURL)
		cfg.LLM.Providers[name] = provider
	}
	cfg.Database.Path = expandEnv(cfg.Database.Path)
}

func expandEnv(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if env := os.Getenv(name); env != "" {
			return env
		}
		return match
	})
}

// applyEnvOverrides picks up AAA_* variables when no config file is used.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("AAA_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("AAA_SERVER_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &cfg.Server.Port)
	}
	if path := os.Getenv("AAA_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if level := os.Getenv("AAA_LOGGING_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
