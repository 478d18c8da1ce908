package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/tiefsee/pkg/config"
	"github.com/rhuss/tiefsee/pkg/credential"
	transporthttp "github.com/rhuss/tiefsee/pkg/transport/http"
)

var serveFlags struct {
	port     int
	logLevel string
	dryRun   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway HTTP server.

Examples:
  # Start with discovered config
  tiefsee serve

  # Override the listen port and log level
  tiefsee serve --port 9000 --log-level DEBUG

  # Validate config without starting the server
  tiefsee serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "override listen port")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (ERROR, WARN, INFO, DEBUG, TRACE)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(serveFlags.logLevel)
	if err != nil {
		return err
	}
	if serveFlags.port != 0 {
		cfg.Server.Port = serveFlags.port
	}

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := credential.NewScheduler(c.cache, cfg.Credentials.SweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting credential sweep: %w", err)
	}
	defer sweeper.Stop()

	srv := transporthttp.NewServer(c.engine, c.engine, c.engine, serverOptions(cfg)...)

	slog.Info("tiefsee starting",
		"version", Version,
		"addr", cfg.Server.ListenAddr(),
		"upstream", cfg.Upstream.BaseURL,
		"default_model", cfg.Engine.DefaultModel,
	)
	return srv.Run(ctx)
}

// serverOptions maps the server and observability config onto the HTTP
// server options.
func serverOptions(cfg *config.Config) []transporthttp.ServerOption {
	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(cfg.Server.ListenAddr()),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(slog.Default()),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithHandler("GET "+cfg.Observability.Metrics.Path, promhttp.Handler()))
	}
	return opts
}
