// Package config loads the nexus configuration from YAML with env overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRetryMaxAttempts  = 3
	defaultRequestTimeout    = 5 * time.Minute
	defaultRefreshTimeout    = 30 * time.Second
	defaultRefreshThreshold  = 5 * time.Minute
	defaultStreamIdleTimeout = 60 * time.Second
	defaultSignatureTTL      = time.Hour
	defaultSignatureCapacity = 200_000
)

// UpstreamConfig holds the per-upstream model allow-list and an optional
// base URL override (tests point this at a local server).
type UpstreamConfig struct {
	BaseURL   string   `yaml:"base_url"`
	ModelList []string `yaml:"model_list"`
}

// Config is the full runtime configuration.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// NexusKey gates /auth/{secret} and doubles as the proxy API key.
	NexusKey string `yaml:"nexus_key"`

	// Cookie keys for the encrypted OAuth session cookies. Generated at
	// startup when unset (login sessions then don't survive restarts).
	CookieHashKey  string `yaml:"cookie_hash_key"`
	CookieBlockKey string `yaml:"cookie_block_key"`

	DBPath string `yaml:"db_path"`

	RetryMaxAttempts  int      `yaml:"retry_max_attempts"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	RefreshTimeout    Duration `yaml:"refresh_timeout"`
	RefreshThreshold  Duration `yaml:"refresh_threshold"`
	StreamIdleTimeout Duration `yaml:"stream_idle_timeout"`

	SignatureTTL      Duration `yaml:"signature_ttl"`
	SignatureCapacity int      `yaml:"signature_capacity"`

	Antigravity UpstreamConfig `yaml:"antigravity"`
	GeminiCli   UpstreamConfig `yaml:"geminicli"`
	Codex       UpstreamConfig `yaml:"codex"`
}

// Duration wraps time.Duration so YAML can carry values like "60s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a config with all knobs at their defaults.
func Default() *Config {
	return &Config{
		Host:              "127.0.0.1",
		Port:              "8086",
		DBPath:            "nexus.db",
		RetryMaxAttempts:  defaultRetryMaxAttempts,
		RequestTimeout:    Duration(defaultRequestTimeout),
		RefreshTimeout:    Duration(defaultRefreshTimeout),
		RefreshThreshold:  Duration(defaultRefreshThreshold),
		StreamIdleTimeout: Duration(defaultStreamIdleTimeout),
		SignatureTTL:      Duration(defaultSignatureTTL),
		SignatureCapacity: defaultSignatureCapacity,
		Antigravity: UpstreamConfig{
			ModelList: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-3-pro-preview",
				"claude-sonnet-4-5",
				"claude-sonnet-4-5-thinking",
			},
		},
		GeminiCli: UpstreamConfig{
			ModelList: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
			},
		},
		Codex: UpstreamConfig{
			ModelList: []string{
				"gpt-5",
				"gpt-5-codex",
			},
		},
	}
}

// Load reads the config file (if any) and applies env overrides.
// Search order: NEXUS_CONFIG, ./config/nexus.yaml, ~/.config/nexus/nexus.yaml,
// /etc/nexus/nexus.yaml.
func Load() (*Config, error) {
	cfg := Default()

	paths := []string{}
	if p := os.Getenv("NEXUS_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "config/nexus.yaml")
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, home+"/.config/nexus/nexus.yaml")
	}
	paths = append(paths, "/etc/nexus/nexus.yaml")

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		break
	}

	applyEnv(cfg)

	if cfg.NexusKey == "" {
		return nil, fmt.Errorf("nexus_key is required (config nexus_key or env NEXUS_KEY)")
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("NEXUS_KEY"); v != "" {
		cfg.NexusKey = v
	}
	if v := os.Getenv("NEXUS_COOKIE_HASH_KEY"); v != "" {
		cfg.CookieHashKey = v
	}
	if v := os.Getenv("NEXUS_COOKIE_BLOCK_KEY"); v != "" {
		cfg.CookieBlockKey = v
	}
	if v := os.Getenv("NEXUS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string { return c.Host + ":" + c.Port }
