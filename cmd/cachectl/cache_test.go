package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"playground-gateway/internal/app"
	"playground-gateway/internal/config"
	"playground-gateway/internal/respcache"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "playground.yaml")
	body := "store:\n  backend: sqlite\n  sqlite_path: " + filepath.Join(dir, "cache.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func seed(t *testing.T, configPath string) {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger := zaptest.NewLogger(t)
	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = closeStore() }()

	c := app.NewResponseCache(ctx, cfg, store, logger)
	prompt := "Explain feature 42"
	c.Set(ctx, prompt, []respcache.Message{{Role: "user", Content: prompt}}, "It detects code comments.", "openai", "gpt-4")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v (%s)", args, err, out.String())
	}
	return out.String()
}

func TestCacheCommands(t *testing.T) {
	configPath := writeConfig(t)
	seed(t, configPath)

	out := execute(t, "cache", "stats", "-c", configPath)
	if !strings.Contains(out, "Entries: 1") {
		t.Fatalf("unexpected stats output: %q", out)
	}

	out = execute(t, "cache", "list", "-c", configPath)
	if !strings.Contains(out, "Explain feature 42") || !strings.Contains(out, "gpt-4") {
		t.Fatalf("unexpected list output: %q", out)
	}

	out = execute(t, "cache", "lookup", "-c", configPath, "explain feature 42")
	if !strings.HasPrefix(out, "similar hit") || !strings.Contains(out, "It detects code comments.") {
		t.Fatalf("unexpected lookup output: %q", out)
	}

	out = execute(t, "cache", "lookup", "-c", configPath, "--model", "gpt-3.5", "Explain feature 42")
	if strings.TrimSpace(out) != "miss" {
		t.Fatalf("expected miss for other model, got %q", out)
	}

	out = execute(t, "cache", "clear", "-c", configPath)
	if !strings.Contains(out, "cleared") {
		t.Fatalf("unexpected clear output: %q", out)
	}

	out = execute(t, "cache", "stats", "-c", configPath)
	if !strings.Contains(out, "Entries: 0") {
		t.Fatalf("expected empty cache after clear, got %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("got %q", got)
	}
}
