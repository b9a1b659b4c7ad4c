package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: "https://api.example.com/api"
  timeout: 30s
storage:
  path: "data/test.db"
sync:
  interval: 2m
  max_pending: 10
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval.Std())
	assert.Equal(t, 10, cfg.Sync.MaxPending)
}

func TestLoadConfigDefaults(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: "https://api.example.com/api"
storage:
  path: "data/test.db"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "bairro", cfg.App.Name)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout.Std())
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.API.RetryBaseDelay.Std())
	assert.Equal(t, 10*time.Second, cfg.API.RetryMaxDelay.Std())
	assert.Equal(t, 1.5, cfg.API.BackoffFactor)
	assert.Equal(t, FallbackPolicyFallback, cfg.API.FallbackPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 30*time.Minute, cfg.Cache.MaxAge.Std())
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval.Std())
	assert.Equal(t, 50, cfg.Sync.MaxPending)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLifetime.Std())
	assert.Equal(t, 30*time.Minute, cfg.Auth.RefreshThreshold.Std())
	assert.Equal(t, "exports", cfg.Exports.Path)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_URL", "https://env.example.com/api")

	configPath := writeConfig(t, `
api:
  base_url: "${TEST_API_URL}"
storage:
  path: "data/test.db"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "base_url",
		},
		{
			name:    "missing storage path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage path",
		},
		{
			name:    "unknown fallback policy",
			mutate:  func(c *Config) { c.API.FallbackPolicy = "sometimes" },
			wantErr: "fallback_policy",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
			wantErr: "redis address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.API.BaseURL = "https://api.example.com"
			cfg.Storage.Path = "data/test.db"
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: "https://api.example.com/api"
  timeout: 90
storage:
  path: "data/test.db"
cache:
  max_age: 1h30m
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// bare numbers are seconds
	assert.Equal(t, 90*time.Second, cfg.API.Timeout.Std())
	assert.Equal(t, 90*time.Minute, cfg.Cache.MaxAge.Std())
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: "https://api.example.com/api"
  timeout: "soon"
storage:
  path: "data/test.db"
`)

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
