// Command mock-backend runs a deterministic stand-in for the upstream chat
// backend so the gateway can be exercised without real credentials.
//
// It serves the identity, clear-context and completion endpoints. Refresh
// tokens with the "bad" prefix are rejected with code 40003; every other
// refresh token is exchanged for a fresh access token. Completions echo the
// last user turn of the prompt as a stream of chat.completion chunks.
//
// Configuration:
//
//	MOCK_PORT        - Listen port (default: 9090)
//	MOCK_CHUNK_DELAY - Delay between streamed chunks (default: 0)
//	MOCK_PLAIN       - When "true", completions answer with JSON instead of SSE
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	opts := options{}
	if v := os.Getenv("MOCK_CHUNK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_CHUNK_DELAY", "value", v, "error", err)
			os.Exit(1)
		}
		opts.chunkDelay = d
	}
	if v := os.Getenv("MOCK_PLAIN"); v != "" {
		plain, _ := strconv.ParseBool(v)
		opts.plain = plain
	}

	srv := &http.Server{Addr: ":" + port, Handler: newBackend(opts).routes()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "chunk_delay", opts.chunkDelay, "plain", opts.plain)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
