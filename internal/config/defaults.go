package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults for command execution against the controller. The timerange and
// backtest config mirror what the controller pipeline expects when the user
// omits them.
const (
	DefaultTimerange      = "20240101-20241201"
	DefaultBacktestConfig = "config_KrakenFreqAI_auto_stack.json"
)

// SetDefaults sets default values for all configuration keys.
func SetDefaults() {
	// Gateway
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8080)
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 60)
	viper.SetDefault("gateway.rate_limit.burst", 10)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", 5*time.Minute)

	// Controller (job-execution service)
	viper.SetDefault("controller.url", "http://localhost:5050")
	viper.SetDefault("controller.default_timerange", DefaultTimerange)
	viper.SetDefault("controller.default_config", DefaultBacktestConfig)
	viper.SetDefault("controller.probe_delay", 2*time.Second)

	// LLM backend
	viper.SetDefault("llm.endpoint", "http://localhost:8000/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.default_model", "mistralai/mistral-7b-instruct:free")
	viper.SetDefault("llm.system_prompt", "You are a helpful assistant for a trading research workspace.")
	viper.SetDefault("llm.timeout", 5*time.Minute)
	viper.SetDefault("llm.history_limit", 50)

	// Retry policy for outbound requests
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", 1*time.Second)
	viper.SetDefault("retry.timeout", 30*time.Second)

	// Resumable streams
	viper.SetDefault("resume.window", 15*time.Second)
	viper.SetDefault("resume.retention", 24*time.Hour)
	viper.SetDefault("resume.janitor_schedule", "@every 10m")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage
	viper.SetDefault("storage.path", "~/.freqgate/data.db")
}
