package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, key := range []string{"FLOW_LOG_LEVEL", "FLOW_LOG_FORMAT", "FLOW_MAX_PARALLELISM", "FLOW_TIMEOUT"} {
		os.Unsetenv(key)
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Engine.MaxParallelism)
	assert.Equal(t, time.Duration(0), cfg.Engine.Timeout)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("FLOW_LOG_LEVEL", "debug")
	os.Setenv("FLOW_LOG_FORMAT", "text")
	os.Setenv("FLOW_MAX_PARALLELISM", "4")
	os.Setenv("FLOW_TIMEOUT", "30s")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Engine.MaxParallelism)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
}

func TestConfig_Load_InvalidValuesUsesDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("FLOW_MAX_PARALLELISM", "not_a_number")
	os.Setenv("FLOW_TIMEOUT", "invalid_duration")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.MaxParallelism)
	assert.Equal(t, time.Duration(0), cfg.Engine.Timeout)
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "verbose", ""} {
		cfg := &Config{Logging: LoggingConfig{Level: level, Format: "json"}, Engine: EngineConfig{MaxParallelism: 8}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	}
}

func TestConfig_Validate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := &Config{Logging: LoggingConfig{Level: level, Format: "json"}, Engine: EngineConfig{MaxParallelism: 8}}
		assert.NoError(t, cfg.Validate())
	}
}

func TestConfig_Validate_InvalidLogFormat(t *testing.T) {
	for _, format := range []string{"xml", "csv", ""} {
		cfg := &Config{Logging: LoggingConfig{Level: "info", Format: format}, Engine: EngineConfig{MaxParallelism: 8}}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	}
}

func TestConfig_Validate_InvalidMaxParallelism(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "info", Format: "json"}, Engine: EngineConfig{MaxParallelism: 0}}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FLOW_MAX_PARALLELISM")
}

func TestGetEnv_WithValue(t *testing.T) {
	os.Setenv("TEST_KEY", "test_value")
	defer os.Unsetenv("TEST_KEY")
	assert.Equal(t, "test_value", getEnv("TEST_KEY", "default"))
}

func TestGetEnv_WithoutValue(t *testing.T) {
	os.Unsetenv("TEST_KEY")
	assert.Equal(t, "default", getEnv("TEST_KEY", "default"))
}

func TestGetEnvAsInt_ValidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 10))
}

func TestGetEnvAsInt_InvalidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "not_a_number")
	defer os.Unsetenv("TEST_INT")
	assert.Equal(t, 10, getEnvAsInt("TEST_INT", 10))
}

func TestGetEnvAsDuration_Valid(t *testing.T) {
	os.Setenv("TEST_DURATION", "1h30m")
	defer os.Unsetenv("TEST_DURATION")
	assert.Equal(t, 90*time.Minute, getEnvAsDuration("TEST_DURATION", 10*time.Second))
}

func TestGetEnvAsDuration_Invalid(t *testing.T) {
	os.Setenv("TEST_DURATION", "invalid")
	defer os.Unsetenv("TEST_DURATION")
	assert.Equal(t, 10*time.Second, getEnvAsDuration("TEST_DURATION", 10*time.Second))
}
