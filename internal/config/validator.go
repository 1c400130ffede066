package config

import (
	"fmt"

	"github.com/zenovak/2100-AAA/internal/types"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks the configuration for values the engine cannot run with.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Database.Path == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "database.path is required")
	}
	if cfg.Database.MaxConnections < 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"database.max_connections must be at least 1")
	}
	if cfg.Engine.MaxSteps < 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"engine.max_steps must be at least 1")
	}
	if cfg.Delivery.MaxAttempts < 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"delivery.max_attempts must be at least 1")
	}
	if cfg.Delivery.RetryDelay < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"delivery.retry_delay must not be negative")
	}
	if !validLogLevels[cfg.Logging.Level] {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level))
	}
	if !validLogFormats[cfg.Logging.Format] {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("logging.format %q is not one of text, json", cfg.Logging.Format))
	}
	for name, provider := range cfg.LLM.Providers {
		if provider.Type == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("llm.providers.%s.type is required", name))
		}
	}
	return nil
}
