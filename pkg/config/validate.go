package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	// upstream.base_url must be an absolute http(s) URL.
	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url is required"))
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url must be an absolute http(s) URL, got %q", c.Upstream.BaseURL))
	}

	if c.Upstream.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_attempts must be >= 1, got %d", c.Upstream.MaxAttempts))
	}
	if c.Upstream.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("upstream.retry_delay must not be negative, got %s", c.Upstream.RetryDelay))
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.request_timeout must be > 0, got %s", c.Upstream.RequestTimeout))
	}
	if c.Upstream.CompletionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.completion_timeout must be > 0, got %s", c.Upstream.CompletionTimeout))
	}

	if c.Credentials.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("credentials.access_token_ttl must be > 0, got %s", c.Credentials.AccessTokenTTL))
	}
	if c.Credentials.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("credentials.max_entries must be >= 0, got %d", c.Credentials.MaxEntries))
	}
	if c.Credentials.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Credentials.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("credentials.sweep_schedule %q is invalid: %w", c.Credentials.SweepSchedule, err))
		}
	}

	// engine.default_model must be one of the advertised models when a list is configured.
	if c.Engine.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("engine.default_model is required"))
	} else if len(c.Engine.Models) > 0 && !slices.Contains(c.Engine.Models, c.Engine.DefaultModel) {
		errs = append(errs, fmt.Errorf("engine.default_model %q is not listed in engine.models", c.Engine.DefaultModel))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
