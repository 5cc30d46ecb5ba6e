package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	// backend.base_url is required and must be an http(s) URL.
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL))
	}

	switch c.Backend.Grammar {
	case GrammarChat:
	case GrammarMessages:
		if c.Backend.NativeStructuredOutput {
			errs = append(errs, errors.New("backend.native_structured_output is only supported by the \"chat\" grammar"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.grammar must be %q or %q, got %q", GrammarChat, GrammarMessages, c.Backend.Grammar))
	}

	if c.Backend.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("backend.max_tokens must be >= 0, got %d", c.Backend.MaxTokens))
	}

	// Retry policy.
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.PerAttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("retry.per_attempt_timeout must be >= 0, got %s", c.Retry.PerAttemptTimeout))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must be > 0, got %s", c.Retry.BaseDelay))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay (%s) must be >= retry.base_delay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Retry.RateLimitFloor < 0 {
		errs = append(errs, fmt.Errorf("retry.rate_limit_floor must be >= 0, got %s", c.Retry.RateLimitFloor))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter must be between 0 and 1, got %g", c.Retry.Jitter))
	}

	// debug.log_level and debug.format must be known values.
	switch strings.ToUpper(c.Debug.LogLevel) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("debug.log_level must be TRACE, DEBUG, INFO, WARN or ERROR, got %q", c.Debug.LogLevel))
	}
	switch c.Debug.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("debug.format must be \"text\" or \"json\", got %q", c.Debug.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
