// Package config provides configuration file support for modelstore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/webhook"
)

// FileName is the config file looked up in the working directory.
const FileName = ".modelstore.yaml"

// Config represents the modelstore configuration.
type Config struct {
	ModelsDir    string         `yaml:"models_dir"`
	Listen       string         `yaml:"listen"`
	ModelVersion string         `yaml:"model_version"`
	LeaseWindow  string         `yaml:"lease_window"`
	Auth         AuthConfig     `yaml:"auth"`
	Logging      LoggingConfig  `yaml:"logging"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	Webhooks     webhook.Config `yaml:"webhooks"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PublicKeyURI string `yaml:"public_key_uri"`
	DefaultUser  string `yaml:"default_user"`

	chosen bool
}

// Chosen reports whether Enabled was set by a config file, flag or
// environment variable rather than left at its default.
func (a AuthConfig) Chosen() bool {
	return a.chosen
}

// SetEnabled sets Enabled and marks the choice as explicit.
func (a *AuthConfig) SetEnabled(enabled bool) {
	a.Enabled = enabled
	a.chosen = true
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	wh := webhook.DefaultConfig()
	wh.Enabled = false
	return &Config{
		ModelsDir:   "models",
		Listen:      ":5000",
		LeaseWindow: "75m",
		Auth: AuthConfig{
			DefaultUser: "user1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Webhooks: *wh,
	}
}

// Load loads configuration from path.
// Returns default config if path is empty or the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var explicit struct {
		Auth struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"auth"`
	}
	if err := yaml.Unmarshal(data, &explicit); err == nil && explicit.Auth.Enabled != nil {
		cfg.Auth.chosen = true
	}

	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Window returns the parsed lease staleness window.
func (c *Config) Window() (time.Duration, error) {
	d, err := time.ParseDuration(c.LeaseWindow)
	if err != nil {
		return 0, fmt.Errorf("lease_window: %w", err)
	}
	return d, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.ModelsDir == "" {
		return fmt.Errorf("models_dir must not be empty")
	}
	d, err := c.Window()
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("lease_window must be positive, got %s", c.LeaseWindow)
	}
	switch logging.Level(c.Logging.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Auth.Enabled && c.Auth.PublicKeyURI == "" {
		return fmt.Errorf("auth.public_key_uri is required when auth is enabled")
	}
	if !c.Auth.Enabled && c.Auth.DefaultUser == "" {
		return fmt.Errorf("auth.default_user is required when auth is disabled")
	}
	return nil
}
