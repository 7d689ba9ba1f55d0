// Package config loads the auth subsystem's settings from the
// environment.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secret is a string type that redacts itself when printed.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Config carries everything the auth subsystem needs. Defaults target
// the production Plex Addons API with Discord as the identity provider.
type Config struct {
	// APIBaseURL is the Plex Addons backend the dashboard talks to.
	APIBaseURL string `env:"PLEXADDONS_API_URL" envDefault:"https://api.plexaddons.com"`

	// TrustedRedirectHosts is the allowlist of identity-provider hosts
	// login redirects may navigate to. Anything else is blocked.
	TrustedRedirectHosts []string `env:"PLEXADDONS_TRUSTED_HOSTS" envSeparator:"," envDefault:"discord.com,*.discord.com"`

	// SessionDBPath is where the durable session store lives.
	SessionDBPath string `env:"PLEXADDONS_SESSION_DB" envDefault:"session.db"`

	// SessionKey seals the persisted session token at rest. Must be 32
	// bytes when set; empty disables sealing.
	SessionKey Secret `env:"PLEXADDONS_SESSION_KEY"`

	// LandingPath is where logout sends the browser.
	LandingPath string `env:"PLEXADDONS_LANDING_PATH" envDefault:"/"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Load parses and validates configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that env parsing can't express.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	if len(c.TrustedRedirectHosts) == 0 {
		return fmt.Errorf("at least one trusted redirect host is required")
	}
	if c.SessionKey != "" && len(c.SessionKey) != 32 {
		return fmt.Errorf("session key must be exactly 32 bytes")
	}
	return nil
}
