// Package config handles loading, parsing, and validating YAML configuration
// for the Fluxez client. Secrets can be overlaid from environment variables
// so they stay out of config files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is unset.
const (
	// DefaultBaseURL is the Fluxez API endpoint.
	DefaultBaseURL = "https://api.fluxez.com/api/v1"
	// DefaultHTTPTimeout is the default timeout for control-plane HTTP requests.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultReconnectInterval is the delay between realtime reconnect attempts.
	DefaultReconnectInterval = 5 * time.Second
	// DefaultMaxReconnectAttempts is the reconnect budget before giving up.
	DefaultMaxReconnectAttempts = 10
)

// Config is the top-level client configuration. Each client instance owns
// its own snapshot; there is no ambient global configuration.
type Config struct {
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	BaseURL     string        `yaml:"base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Realtime RealtimeConfig `yaml:"realtime"`
}

// RealtimeConfig configures the realtime channel multiplexer.
type RealtimeConfig struct {
	// URL overrides the transport endpoint derived from BaseURL.
	URL string `yaml:"url"`
	// Reconnect enables automatic reconnection. Nil means enabled.
	Reconnect            *bool         `yaml:"reconnect"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// ReconnectEnabled reports whether automatic reconnection is on,
// defaulting to true when unset.
func (rc RealtimeConfig) ReconnectEnabled() bool {
	return rc.Reconnect == nil || *rc.Reconnect
}

// Default returns a Config with defaults applied and secrets taken from
// the environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads a client configuration from a YAML file, then overlays
// environment variables for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.Realtime.ReconnectInterval == 0 {
		cfg.Realtime.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.Realtime.MaxReconnectAttempts == 0 {
		cfg.Realtime.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
}

// applyEnvOverrides overlays environment variables for secrets and the
// base URL. Environment values win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLUXEZ_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("FLUXEZ_API_SECRET"); v != "" {
		cfg.APISecret = v
	}
	if v := os.Getenv("FLUXEZ_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FLUXEZ_REALTIME_URL"); v != "" {
		cfg.Realtime.URL = v
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("api_key is required (set FLUXEZ_API_KEY)")
	}

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got %q", cfg.BaseURL)
	}

	if cfg.Realtime.URL != "" &&
		!strings.HasPrefix(cfg.Realtime.URL, "ws://") && !strings.HasPrefix(cfg.Realtime.URL, "wss://") {
		return fmt.Errorf("realtime.url must start with ws:// or wss://, got %q", cfg.Realtime.URL)
	}

	if cfg.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must not be negative")
	}

	return nil
}
