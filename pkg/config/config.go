// Package config provides unified configuration for modelbridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (MODELBRIDGE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/modelbridge/pkg/executor"
)

// Backend grammars.
const (
	GrammarChat     = "chat"
	GrammarMessages = "messages"
)

// Config holds all configuration for a modelbridge client.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Retry         RetryConfig         `yaml:"retry"`
	Headers       map[string]string   `yaml:"headers"`
	Debug         DebugConfig         `yaml:"debug"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BackendConfig selects the upstream and its wire grammar.
type BackendConfig struct {
	Grammar    string `yaml:"grammar"`      // "chat" or "messages", default: "chat"
	BaseURL    string `yaml:"base_url"`     // required
	APIKey     string `yaml:"api_key"`      // optional
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	Model      string `yaml:"model"`        // default model, optional
	MaxTokens  int    `yaml:"max_tokens"`   // messages grammar only, default: 4096

	AnthropicVersion string `yaml:"anthropic_version"` // default: "2023-06-01"

	// NativeStructuredOutput sends response formats as json_schema instead
	// of emulating them with a forced tool. Chat grammar only.
	NativeStructuredOutput bool `yaml:"native_structured_output"`

	// ExtraBody fields are set on every chat request body. Keys are sjson
	// paths.
	ExtraBody map[string]any `yaml:"extra_body"`
}

// RetryConfig holds the resilient executor policy.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`        // default: 3
	PerAttemptTimeout time.Duration `yaml:"per_attempt_timeout"` // default: 60s
	BaseDelay         time.Duration `yaml:"base_delay"`          // default: 500ms
	MaxDelay          time.Duration `yaml:"max_delay"`           // default: 30s
	RateLimitFloor    time.Duration `yaml:"rate_limit_floor"`    // default: 2s
	Jitter            float64       `yaml:"jitter"`              // default: 0.1
}

// DebugConfig controls debug logging. MODELBRIDGE_DEBUG and
// MODELBRIDGE_LOG_LEVEL override these values.
type DebugConfig struct {
	Categories string `yaml:"categories"` // comma-separated, e.g. "providers,streaming"
	LogLevel   string `yaml:"log_level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format     string `yaml:"format"`     // "text" or "json", default: "text"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Addr    string `yaml:"addr"`    // default: ":9090"
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	def := executor.DefaultConfig()
	return Config{
		Backend: BackendConfig{
			Grammar:          GrammarChat,
			MaxTokens:        4096,
			AnthropicVersion: "2023-06-01",
		},
		Retry: RetryConfig{
			MaxAttempts:       def.MaxAttempts,
			PerAttemptTimeout: def.PerAttemptTimeout,
			BaseDelay:         def.BaseDelay,
			MaxDelay:          def.MaxDelay,
			RateLimitFloor:    def.RateLimitFloor,
			Jitter:            def.Jitter,
		},
		Debug: DebugConfig{
			LogLevel: "INFO",
			Format:   "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Addr: ":9090",
				Path: "/metrics",
			},
		},
	}
}

// ExecutorConfig converts the retry policy and headers for the executor.
func (c *Config) ExecutorConfig() executor.Config {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return executor.Config{
		MaxAttempts:       c.Retry.MaxAttempts,
		PerAttemptTimeout: c.Retry.PerAttemptTimeout,
		BaseDelay:         c.Retry.BaseDelay,
		MaxDelay:          c.Retry.MaxDelay,
		RateLimitFloor:    c.Retry.RateLimitFloor,
		Jitter:            c.Retry.Jitter,
		Headers:           headers,
	}
}
