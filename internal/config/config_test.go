package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tutorgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, "base_url: https://api.example.com\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "v1", cfg.PromptTemplateVersion)
	assert.Equal(t, 12, cfg.HistoryTurns)
	assert.Equal(t, 30*time.Minute, cfg.Cache.FastTTL)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Len(t, cfg.Providers, 3)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.InDelta(t, 0.3, cfg.Retry.Jitter, 1e-9)
}

func TestLoadFromFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
base_url: https://api.example.com
prompt_template_version: v7
history_turns: 4
stream_delay: 5ms
cache:
  fast_ttl: 10m
  redis_addr: localhost:6379
providers:
  - name: anthropic
    max_requests: 5
    window: 30s
default_provider: anthropic
retry:
  max_retries: 1
  base: 250ms
  cap: 2s
  jitter: 0.1
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "v7", cfg.PromptTemplateVersion)
	assert.Equal(t, 4, cfg.HistoryTurns)
	assert.Equal(t, 5*time.Millisecond, cfg.StreamDelay)
	assert.Equal(t, 10*time.Minute, cfg.Cache.FastTTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, 5, cfg.Providers[0].MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Providers[0].Window)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Base)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TUTOR_BACKEND", "https://staging.example.com")
	path := writeConfig(t, "base_url: ${TUTOR_BACKEND}\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	t.Setenv("TUTORGATE_BASE_URL", "https://override.example.com")
	t.Setenv("TUTORGATE_DEFAULT_PROVIDER", "gemini")
	path := writeConfig(t, "base_url: https://file.example.com\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", cfg.BaseURL)
	assert.Equal(t, "gemini", cfg.DefaultProvider)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url"},
		{"no providers", func(c *Config) { c.Providers = nil }, "at least one provider"},
		{"unnamed provider", func(c *Config) { c.Providers[0].Name = "" }, "name is required"},
		{"duplicate provider", func(c *Config) { c.Providers[1].Name = "openai" }, "duplicate"},
		{"unknown default", func(c *Config) { c.DefaultProvider = "mistral" }, "default_provider"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"jitter out of range", func(c *Config) { c.Retry.Jitter = 1.5 }, "jitter"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = "https://api.example.com"
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestManager_HotReload(t *testing.T) {
	path := writeConfig(t, "base_url: https://api.example.com\nhistory_turns: 4\n")

	m, err := NewManager(path, nil)
	require.NoError(t, err)
	defer m.Close()

	changed := make(chan *Config, 1)
	m.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	assert.Equal(t, 4, m.Get().HistoryTurns)

	require.NoError(t, os.WriteFile(path, []byte("base_url: https://api.example.com\nhistory_turns: 8\n"), 0o600))

	select {
	case cfg := <-changed:
		assert.Equal(t, 8, cfg.HistoryTurns)
		assert.Equal(t, 8, m.Get().HistoryTurns)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestManager_KeepsCurrentOnBadReload(t *testing.T) {
	path := writeConfig(t, "base_url: https://api.example.com\n")

	m, err := NewManager(path, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o600))

	time.Sleep(time.Second)
	assert.Equal(t, "https://api.example.com", m.Get().BaseURL)
}
