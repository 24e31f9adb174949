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
	path := filepath.Join(t.TempDir(), "fluxez.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "api_key: file-key\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, DefaultReconnectInterval, cfg.Realtime.ReconnectInterval)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Realtime.MaxReconnectAttempts)
	assert.True(t, cfg.Realtime.ReconnectEnabled())
}

func TestLoadParsesRealtimeBlock(t *testing.T) {
	path := writeConfig(t, `
api_key: file-key
base_url: http://localhost:8080
realtime:
  url: ws://localhost:9000/realtime
  reconnect: false
  reconnect_interval: 2s
  max_reconnect_attempts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "ws://localhost:9000/realtime", cfg.Realtime.URL)
	assert.False(t, cfg.Realtime.ReconnectEnabled())
	assert.Equal(t, 2*time.Second, cfg.Realtime.ReconnectInterval)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
}

func TestEnvOverridesFileValues(t *testing.T) {
	t.Setenv("FLUXEZ_API_KEY", "env-key")
	t.Setenv("FLUXEZ_BASE_URL", "https://staging.fluxez.com/api/v1")

	path := writeConfig(t, "api_key: file-key\nbase_url: https://api.fluxez.com/api/v1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://staging.fluxez.com/api/v1", cfg.BaseURL)
}

func TestValidate(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		cfg := &Config{BaseURL: DefaultBaseURL}
		applyDefaults(cfg)
		assert.ErrorContains(t, Validate(cfg), "api_key")
	})

	t.Run("bad base url", func(t *testing.T) {
		cfg := &Config{APIKey: "k", BaseURL: "ftp://example.com"}
		assert.ErrorContains(t, Validate(cfg), "base_url")
	})

	t.Run("bad realtime url", func(t *testing.T) {
		cfg := &Config{APIKey: "k", BaseURL: DefaultBaseURL}
		cfg.Realtime.URL = "https://not-a-ws-url"
		assert.ErrorContains(t, Validate(cfg), "realtime.url")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := &Config{APIKey: "k"}
		applyDefaults(cfg)
		assert.NoError(t, Validate(cfg))
	})
}
