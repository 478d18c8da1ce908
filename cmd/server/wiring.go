package main

import (
	"fmt"
	"log/slog"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/config"
	"github.com/rhuss/tiefsee/pkg/credential"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/engine"
	"github.com/rhuss/tiefsee/pkg/upstream"
)

// components holds the wired gateway pieces shared by the subcommands.
type components struct {
	client  *upstream.Client
	cache   *credential.Cache
	gateway *upstream.Gateway
	engine  *engine.Engine
}

// loadConfig loads the configuration and installs the logger.
func loadConfig(logLevel string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	debug.Log("config", "configuration loaded",
		"upstream", cfg.Upstream.BaseURL,
		"default_model", cfg.Engine.DefaultModel,
		"static_tokens", len(cfg.Credentials.Tokens),
	)
	return cfg, nil
}

// build wires the upstream client, credential cache, gateway and engine.
func build(cfg *config.Config) (*components, error) {
	client := upstream.NewClient(upstream.ClientOptions{
		BaseURL:           cfg.Upstream.BaseURL,
		RequestTimeout:    cfg.Upstream.RequestTimeout,
		CompletionTimeout: cfg.Upstream.CompletionTimeout,
		Headers:           cfg.Upstream.Headers,
	})

	cache := credential.NewCache(client, credential.Options{
		TTL:        cfg.Credentials.AccessTokenTTL,
		MaxEntries: cfg.Credentials.MaxEntries,
	})

	gateway := upstream.NewGateway(client, cache, upstream.GatewayOptions{
		MaxAttempts: cfg.Upstream.MaxAttempts,
		RetryDelay:  cfg.Upstream.RetryDelay,
	})

	eng, err := engine.New(gateway, engine.Config{
		DefaultModel: cfg.Engine.DefaultModel,
		Models:       cfg.Engine.Models,
		Tokens:       cfg.Credentials.Tokens,
		Validation: api.ValidationConfig{
			MaxMessages:    cfg.Engine.MaxMessages,
			MaxContentSize: cfg.Engine.MaxContentSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	slog.Debug("gateway wired",
		"max_attempts", cfg.Upstream.MaxAttempts,
		"retry_delay", cfg.Upstream.RetryDelay,
		"cache_max_entries", cfg.Credentials.MaxEntries,
	)

	return &components{client: client, cache: cache, gateway: gateway, engine: eng}, nil
}
