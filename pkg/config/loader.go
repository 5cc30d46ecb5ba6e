package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/modelbridge/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, MODELBRIDGE_CONFIG env, ./modelbridge.yaml, /etc/modelbridge/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log(debug.Config, "loaded config file", "path", filePath)
	}

	// Apply environment variable overrides.
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. MODELBRIDGE_CONFIG environment variable
// 3. ./modelbridge.yaml in the current directory
// 4. /etc/modelbridge/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("MODELBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"modelbridge.yaml",
		"/etc/modelbridge/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. Malformed
// numeric values are ignored with a warning; malformed JSON values are
// errors because they usually carry credentials or request fields.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MODELBRIDGE_GRAMMAR"); v != "" {
		cfg.Backend.Grammar = v
	}
	if v := os.Getenv("MODELBRIDGE_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("MODELBRIDGE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("MODELBRIDGE_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("MODELBRIDGE_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.MaxTokens = n
		} else {
			slog.Warn("ignoring invalid MODELBRIDGE_MAX_TOKENS", "value", v)
		}
	}
	if v := os.Getenv("MODELBRIDGE_NATIVE_STRUCTURED_OUTPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Backend.NativeStructuredOutput = b
		} else {
			slog.Warn("ignoring invalid MODELBRIDGE_NATIVE_STRUCTURED_OUTPUT", "value", v)
		}
	}
	if v := os.Getenv("MODELBRIDGE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		} else {
			slog.Warn("ignoring invalid MODELBRIDGE_MAX_ATTEMPTS", "value", v)
		}
	}
	if v := os.Getenv("MODELBRIDGE_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.PerAttemptTimeout = d
		} else {
			slog.Warn("ignoring invalid MODELBRIDGE_ATTEMPT_TIMEOUT", "value", v)
		}
	}

	// MODELBRIDGE_HEADERS: JSON object of extra request headers.
	if v := os.Getenv("MODELBRIDGE_HEADERS"); v != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(v), &headers); err != nil {
			return fmt.Errorf("parsing MODELBRIDGE_HEADERS JSON: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for k, val := range headers {
			cfg.Headers[k] = val
		}
	}

	// MODELBRIDGE_EXTRA_BODY: JSON object of extra request body fields.
	if v := os.Getenv("MODELBRIDGE_EXTRA_BODY"); v != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(v), &extra); err != nil {
			return fmt.Errorf("parsing MODELBRIDGE_EXTRA_BODY JSON: %w", err)
		}
		cfg.Backend.ExtraBody = extra
	}

	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// If the value field is empty and the file field is set, the file is read,
// whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	if cfg.Backend.APIKeyFile != "" && cfg.Backend.APIKey == "" {
		val, err := readSecretFile(cfg.Backend.APIKeyFile)
		if err != nil {
			return fmt.Errorf("backend.api_key_file: %w", err)
		}
		cfg.Backend.APIKey = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
