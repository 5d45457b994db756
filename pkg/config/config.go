// Package config loads application settings from environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contains all settings of the web client.
type Config struct {
	// --- HTTP server ---
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	Env        string `envconfig:"ENV" default:"development"`

	// --- Collaborator API ---
	// Base URL of the prediction/authentication backend.
	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://127.0.0.1:8000"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"30s"`

	// --- Admin view ---
	AdminUser      string        `envconfig:"ADMIN_USER" default:"admin"`
	AdminPass      string        `envconfig:"ADMIN_PASS" required:"true"`
	AdminPollEvery time.Duration `envconfig:"ADMIN_POLL_INTERVAL" default:"30s"`

	// --- Session / CSRF keys ---
	// Hash key must be 32 or 64 bytes; block key 16, 24 or 32 bytes.
	SessionHashKey  string `envconfig:"SESSION_HASH_KEY" required:"true"`
	SessionBlockKey string `envconfig:"SESSION_BLOCK_KEY" default:""`
	CSRFKey         string `envconfig:"CSRF_KEY" default:""`

	// --- Templates ---
	TemplateGlob string `envconfig:"TEMPLATE_GLOB" default:"templates/*.html"`
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL %q is not a valid URL: %w", c.APIBaseURL, err)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be > 0")
	}
	if c.AdminPollEvery < time.Second {
		return fmt.Errorf("ADMIN_POLL_INTERVAL must be >= 1s")
	}
	switch len(c.SessionHashKey) {
	case 32, 64:
	default:
		return fmt.Errorf("SESSION_HASH_KEY must be 32 or 64 bytes, got %d", len(c.SessionHashKey))
	}
	switch len(c.SessionBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("SESSION_BLOCK_KEY must be empty or 16/24/32 bytes, got %d", len(c.SessionBlockKey))
	}
	if c.Env == "production" && len(c.CSRFKey) != 32 {
		return fmt.Errorf("CSRF_KEY must be 32 bytes in production, got %d", len(c.CSRFKey))
	}
	return nil
}

// IsProduction reports whether the app runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads environment variables and fills the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
