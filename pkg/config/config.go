// Package config provides unified configuration for the tiefsee gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TIEFSEE_ prefix, plus SERVER_HOST/SERVER_PORT)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"strconv"
	"time"
)

// Config holds all configuration for the tiefsee gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Engine        EngineConfig        `yaml:"engine"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: "" (all interfaces)
	Port            int           `yaml:"port"`             // default: 8000
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streams may be long)
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 100 MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// UpstreamConfig holds settings for the third-party chat backend.
type UpstreamConfig struct {
	BaseURL           string            `yaml:"base_url"`           // default: https://chat.deepseek.com
	RequestTimeout    time.Duration     `yaml:"request_timeout"`    // default: 15s (refresh, clear context, probes)
	CompletionTimeout time.Duration     `yaml:"completion_timeout"` // default: 120s
	MaxAttempts       int               `yaml:"max_attempts"`       // default: 3
	RetryDelay        time.Duration     `yaml:"retry_delay"`        // default: 5s
	Headers           map[string]string `yaml:"headers"`            // merged over the built-in browser headers
}

// CredentialsConfig holds access token cache settings.
type CredentialsConfig struct {
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"` // default: 1h
	MaxEntries     int           `yaml:"max_entries"`      // default: 10000, 0 = unbounded
	SweepSchedule  string        `yaml:"sweep_schedule"`   // cron expression, default: "@every 10m", "" disables
	Tokens         []string      `yaml:"tokens"`           // used when a request carries no Authorization header
	TokensFile     string        `yaml:"tokens_file"`      // _file variant for tokens, one per line or comma-separated
}

// EngineConfig holds request handling settings.
type EngineConfig struct {
	DefaultModel   string   `yaml:"default_model"`    // default: "deepseek-chat"
	Models         []string `yaml:"models"`           // advertised by GET /v1/models
	MaxMessages    int      `yaml:"max_messages"`     // default: 1000
	MaxContentSize int      `yaml:"max_content_size"` // default: 10 MB
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			MaxBodySize:     100 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://chat.deepseek.com",
			RequestTimeout:    15 * time.Second,
			CompletionTimeout: 120 * time.Second,
			MaxAttempts:       3,
			RetryDelay:        5 * time.Second,
		},
		Credentials: CredentialsConfig{
			AccessTokenTTL: time.Hour,
			MaxEntries:     10000,
			SweepSchedule:  "@every 10m",
		},
		Engine: EngineConfig{
			DefaultModel:   "deepseek-chat",
			Models:         []string{"deepseek-chat", "deepseek-coder"},
			MaxMessages:    1000,
			MaxContentSize: 10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// ListenAddr returns the host:port the HTTP server binds to.
func (s ServerConfig) ListenAddr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
