package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != "8080" {
		t.Errorf("expected 8080, got %s", cfg.Port)
	}
	if cfg.Cache.Expiry != 24*time.Hour {
		t.Errorf("expected 24h expiry, got %v", cfg.Cache.Expiry)
	}
	if cfg.Cache.SimilarityThreshold != 0.85 {
		t.Errorf("expected 0.85 threshold, got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Cache.MaxEntries != 100 {
		t.Errorf("expected 100 max entries, got %d", cfg.Cache.MaxEntries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
port: "9090"
store:
  backend: sqlite
  sqlite_path: cache.db
cache:
  expiry: 30m
  similarity_threshold: 0.9
  max_entries: 10
llm:
  provider: azure
  base_url: https://example.openai.azure.com
  api_key: ${TEST_API_KEY}
  api_version: "2024-06-01"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected 9090, got %s", cfg.Port)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "cache.db" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Cache.Expiry != 30*time.Minute {
		t.Errorf("expected 30m expiry, got %v", cfg.Cache.Expiry)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 || cfg.Cache.MaxEntries != 10 {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should stay enabled when the file omits it")
	}
	if cfg.LLM.APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Provider != "azure" || cfg.LLM.APIVersion != "2024-06-01" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CACHE_EXPIRY", "2h")
	t.Setenv("CACHE_MAX_ENTRIES", "5")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("LLM_MAX_RETRIES", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "redis:6379" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Cache.Expiry != 2*time.Hour || cfg.Cache.MaxEntries != 5 || cfg.Cache.Enabled {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.LLM.MaxRetries != 0 {
		t.Errorf("expected retries disabled, got %d", cfg.LLM.MaxRetries)
	}
}

func TestLoadBadEnv(t *testing.T) {
	cases := map[string]string{
		"CACHE_EXPIRY":               "tomorrow",
		"CACHE_SIMILARITY_THRESHOLD": "high",
		"LLM_MAX_RETRIES":            "few",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"file without dir", func(c *Config) { c.Store.Dir = "" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = "sqlite"; c.Store.SQLitePath = "" }},
		{"zero expiry", func(c *Config) { c.Cache.Expiry = 0 }},
		{"zero max entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"threshold above 1", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
