// Package config loads and holds the application configuration.
package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Version    string           `mapstructure:"version" yaml:"version"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Resume     ResumeConfig     `mapstructure:"resume" yaml:"resume"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
}

// GatewayConfig configures the HTTP gateway server.
type GatewayConfig struct {
	Host      string          `mapstructure:"host" yaml:"host"`
	Port      int             `mapstructure:"port" yaml:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// ControllerConfig configures the external job-execution service.
type ControllerConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	DefaultTimerange string        `mapstructure:"default_timerange" yaml:"default_timerange"`
	DefaultConfig    string        `mapstructure:"default_config" yaml:"default_config"`
	ProbeDelay       time.Duration `mapstructure:"probe_delay" yaml:"probe_delay"`
}

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	Endpoint     string            `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey       string            `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string            `mapstructure:"default_model" yaml:"default_model"`
	Models       map[string]string `mapstructure:"models" yaml:"models,omitempty"` // logical selector -> backend model id
	SystemPrompt string            `mapstructure:"system_prompt" yaml:"system_prompt"`
	Timeout      time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	HistoryLimit int               `mapstructure:"history_limit" yaml:"history_limit"`
}

// RetryConfig configures the resilient request client.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"` // per-attempt timeout
}

// ResumeConfig configures the resumable stream manager.
type ResumeConfig struct {
	Window          time.Duration `mapstructure:"window" yaml:"window"` // freshness window for completed-stream replay
	Retention       time.Duration `mapstructure:"retention" yaml:"retention"`
	JanitorSchedule string        `mapstructure:"janitor_schedule" yaml:"janitor_schedule"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig configures the sqlite store. An empty path disables
// persistence and puts the stream manager into degraded mode.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// Load loads configuration with precedence ENV > file > defaults.
// A missing config file is not an error; parse failures are.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("FREQGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Reset clears viper state and the cached config (for testing).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	viper.Reset()
	globalConfig = nil
}
