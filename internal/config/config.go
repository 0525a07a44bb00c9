// Package config provides configuration for the tutoring gateway client,
// with hot-reload support backed by fsnotify and atomic pointer swaps.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway client configuration.
type Config struct {
	// BaseURL is the HTTP backend root, e.g. "https://api.example.com".
	BaseURL string `yaml:"base_url"`
	// SocketBaseURL overrides the live transport endpoint. When empty the
	// websocket URL is derived from BaseURL.
	SocketBaseURL string `yaml:"socket_base_url"`

	// PromptTemplateVersion participates in cache fingerprints so that
	// prompt revisions never serve stale answers.
	PromptTemplateVersion string `yaml:"prompt_template_version"`

	// HistoryTurns bounds how many prior exchanges accompany a question.
	// Negative disables trimming.
	HistoryTurns int `yaml:"history_turns"`

	// StreamDelay paces synthesized token streams for buffered responses.
	StreamDelay time.Duration `yaml:"stream_delay"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	Cache           CacheConfig      `yaml:"cache"`
	Providers       []ProviderConfig `yaml:"providers"`
	DefaultProvider string           `yaml:"default_provider"`
	Retry           RetryConfig      `yaml:"retry"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// CacheConfig controls the answer cache tiers.
type CacheConfig struct {
	// FastTTL ages entries out of the in-process tier.
	FastTTL time.Duration `yaml:"fast_ttl"`
	// RedisAddr enables the Redis durable tier when set. When empty the
	// backend HTTP cache endpoints serve as the durable tier.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// Namespace prefixes Redis keys.
	Namespace string `yaml:"namespace"`
}

// ProviderConfig defines one AI provider and its request window.
type ProviderConfig struct {
	Name string `yaml:"name"`
	// MaxRequests per Window; zero falls back to the default window.
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RetryConfig bounds transport retries.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Base       time.Duration `yaml:"base"`
	Cap        time.Duration `yaml:"cap"`
	// Jitter is the fraction of the delay added at random, 0 to 1.
	Jitter float64 `yaml:"jitter"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PromptTemplateVersion: "v1",
		HistoryTurns:          12,
		StreamDelay:           20 * time.Millisecond,
		Timeout:               60 * time.Second,
		Cache: CacheConfig{
			FastTTL:   30 * time.Minute,
			Namespace: "tutorcache",
		},
		Providers: []ProviderConfig{
			{Name: "openai"},
			{Name: "anthropic"},
			{Name: "gemini"},
		},
		DefaultProvider: "openai",
		Retry: RetryConfig{
			MaxRetries: 2,
			Base:       500 * time.Millisecond,
			Cap:        8 * time.Second,
			Jitter:     0.3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment
// variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets deployment environments override endpoints without
// editing the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TUTORGATE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("TUTORGATE_SOCKET_BASE_URL"); v != "" {
		c.SocketBaseURL = v
	}
	if v := os.Getenv("TUTORGATE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("TUTORGATE_DEFAULT_PROVIDER"); v != "" {
		c.DefaultProvider = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("provider[%d] %q: duplicate name", i, p.Name)
		}
		names[p.Name] = true
		if p.MaxRequests < 0 {
			return fmt.Errorf("provider[%d] %q: max_requests cannot be negative", i, p.Name)
		}
		if p.Window < 0 {
			return fmt.Errorf("provider[%d] %q: window cannot be negative", i, p.Name)
		}
	}

	if c.DefaultProvider != "" && !names[c.DefaultProvider] {
		return fmt.Errorf("default_provider %q is not in providers", c.DefaultProvider)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be between 0 and 1")
	}
	if c.Cache.FastTTL < 0 {
		return fmt.Errorf("cache.fast_ttl cannot be negative")
	}
	return nil
}
