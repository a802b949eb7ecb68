// Package config provides configuration management for the workflow engine
// CLI: environment-variable overrides for logging and default execution
// options, loaded the way the teacher's internal/config package does (a
// flat Config struct populated by getEnv* helpers, with godotenv sourcing a
// local .env file first).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/engine"
)

// Config holds the CLI's configuration.
type Config struct {
	Logging LoggingConfig
	Engine  EngineConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// EngineConfig holds the default engine.Options a run uses when the CLI
// flags don't override them.
type EngineConfig struct {
	MaxParallelism int
	Timeout        time.Duration
}

// Load loads the configuration from environment variables (and a .env file
// in the working directory, if present).
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  getEnv("FLOW_LOG_LEVEL", "info"),
			Format: getEnv("FLOW_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			MaxParallelism: getEnvAsInt("FLOW_MAX_PARALLELISM", engine.DefaultMaxParallelism),
			Timeout:        getEnvAsDuration("FLOW_TIMEOUT", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	if c.Engine.MaxParallelism < 1 {
		return fmt.Errorf("FLOW_MAX_PARALLELISM must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
