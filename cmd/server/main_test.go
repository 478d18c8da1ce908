package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rhuss/tiefsee/pkg/config"
)

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{{"serve"}, {"version"}, {"token", "check"}} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil {
			t.Fatalf("Find(%v): %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %q", path, cmd.Name())
		}
	}
}

func TestVersionOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	if !strings.HasPrefix(out, "tiefsee "+Version+"\n") {
		t.Errorf("version output = %q", out)
	}
	if !strings.Contains(out, runtime.Version()) {
		t.Errorf("version output missing Go version: %q", out)
	}
}

func TestServeDryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9123\nlogging:\n  level: WARN\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"serve", "--config", path, "--dry-run"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
		serveFlags.dryRun = false
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("serve --dry-run: %v", err)
	}
	if !strings.Contains(buf.String(), "configuration valid") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestServeInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  max_attempts: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"serve", "--config", path, "--dry-run"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
		serveFlags.dryRun = false
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "upstream.max_attempts") {
		t.Fatalf("expected max_attempts validation error, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	cfg := config.Defaults()
	cfg.Credentials.Tokens = []string{"rt-1"}

	c, err := build(&cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.client.Close()

	list, err := c.engine.ListModels(t.Context())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(list.Data) != len(cfg.Engine.Models) {
		t.Errorf("got %d models, want %d", len(list.Data), len(cfg.Engine.Models))
	}
}

func TestServerOptions(t *testing.T) {
	cfg := config.Defaults()
	withMetrics := len(serverOptions(&cfg))

	cfg.Observability.Metrics.Enabled = false
	withoutMetrics := len(serverOptions(&cfg))

	if withMetrics != withoutMetrics+1 {
		t.Errorf("metrics option count: with=%d without=%d", withMetrics, withoutMetrics)
	}
}
