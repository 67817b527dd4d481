package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds gateway and cache tooling configuration.
type Config struct {
	Port     string      `yaml:"port"`
	Env      string      `yaml:"env"`
	LogLevel string      `yaml:"log_level"`
	Store    StoreConfig `yaml:"store"`
	Cache    CacheConfig `yaml:"cache"`
	LLM      LLMConfig   `yaml:"llm"`
}

// StoreConfig selects the durable key-value backend.
// Backend is "memory", "file", "redis" or "sqlite".
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	Prefix     string `yaml:"prefix"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	StorageKey          string        `yaml:"storage_key"`
	Expiry              time.Duration `yaml:"expiry"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxEntries          int           `yaml:"max_entries"`
}

// LLMConfig defines the upstream provider. Provider is "openai" (default) or "azure".
type LLMConfig struct {
	Provider        string        `yaml:"provider"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	APIVersion      string        `yaml:"api_version"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Port: "8080",
		Store: StoreConfig{
			Backend:    "file",
			Dir:        ".playground-cache",
			SQLitePath: "playground.db",
			RedisAddr:  "127.0.0.1:6379",
			Prefix:     "playground",
		},
		Cache: CacheConfig{
			Enabled:             true,
			StorageKey:          "llm-cache",
			Expiry:              24 * time.Hour,
			SimilarityThreshold: 0.85,
			MaxEntries:          100,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			BaseURL:         "https://api.openai.com",
			UpstreamTimeout: 30 * time.Second,
			MaxRetries:      2,
		},
	}
}

// Load reads the YAML file at path, when path is not empty, expanding
// ${VAR} references, and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.Dir, "FILE_STORE_DIR")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Store.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Store.Prefix, "STORE_PREFIX")

	setString(&cfg.Cache.StorageKey, "CACHE_STORAGE_KEY")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.APIVersion, "LLM_API_VERSION")

	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_ENABLED: %w", err)
		}
		cfg.Cache.Enabled = b
	}
	if v := os.Getenv("CACHE_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_EXPIRY: %w", err)
		}
		cfg.Cache.Expiry = d
	}
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.Cache.MaxEntries = n
	}
	if v := os.Getenv("CACHE_SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CACHE_SIMILARITY_THRESHOLD: %w", err)
		}
		cfg.Cache.SimilarityThreshold = f
	}
	if v := os.Getenv("LLM_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LLM_MAX_RETRIES: %w", err)
		}
		cfg.LLM.MaxRetries = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the fields the cache needs. The LLM API key is checked by
// the gateway only, so cache tooling runs without one.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	case "file":
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cache.Expiry <= 0 {
		return errors.New("cache.expiry must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return errors.New("cache.similarity_threshold must be between 0 and 1")
	}
	return nil
}
