package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TIEFSEE_CONFIG env, ./config.yaml, /etc/tiefsee/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TIEFSEE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/tiefsee/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TIEFSEE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/tiefsee/config.yaml",
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

// applyEnvOverrides maps environment variables to config fields.
// SERVER_HOST and SERVER_PORT are honoured for compatibility with
// existing deployments; the TIEFSEE_ names win when both are set.
// Malformed numeric or duration values are reported instead of ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TIEFSEE_HOST"); v != "" {
		cfg.Server.Host = v
	}

	for _, key := range []string{"SERVER_PORT", "TIEFSEE_PORT"} {
		if v := os.Getenv(key); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("TIEFSEE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("TIEFSEE_MODEL"); v != "" {
		cfg.Engine.DefaultModel = v
	}
	if v := os.Getenv("TIEFSEE_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIEFSEE_MAX_ATTEMPTS: %w", err)
		}
		cfg.Upstream.MaxAttempts = n
	}
	if v := os.Getenv("TIEFSEE_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIEFSEE_CACHE_SIZE: %w", err)
		}
		cfg.Credentials.MaxEntries = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIEFSEE_RETRY_DELAY", &cfg.Upstream.RetryDelay},
		{"TIEFSEE_REQUEST_TIMEOUT", &cfg.Upstream.RequestTimeout},
		{"TIEFSEE_COMPLETION_TIMEOUT", &cfg.Upstream.CompletionTimeout},
		{"TIEFSEE_TOKEN_TTL", &cfg.Credentials.AccessTokenTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("TIEFSEE_TOKENS"); v != "" {
		cfg.Credentials.Tokens = splitTokenList(v)
	}
	if v := os.Getenv("TIEFSEE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TIEFSEE_METRICS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TIEFSEE_METRICS: %w", err)
		}
		cfg.Observability.Metrics.Enabled = enabled
	}

	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// The file is only consulted when the value field is empty.
func resolveFileReferences(cfg *Config) error {
	// credentials.tokens_file -> credentials.tokens
	if cfg.Credentials.TokensFile != "" && len(cfg.Credentials.Tokens) == 0 {
		val, err := readSecretFile(cfg.Credentials.TokensFile)
		if err != nil {
			return fmt.Errorf("credentials.tokens_file: %w", err)
		}
		cfg.Credentials.Tokens = splitTokenList(val)
	}
	return nil
}

// splitTokenList splits a comma- or newline-separated token list and drops
// blank entries.
func splitTokenList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
