// Package config loads environment-based configuration for the broker.
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for modelgw.
type Config struct {
	// Address the HTTP surface binds to.
	ListenAddr string `env:"MODELGW_LISTEN_ADDR" envDefault:":8787"`

	// Public origin the broker is reachable on. Redirect URIs sent to
	// providers are built from this value. When empty, a localhost origin
	// is derived from ListenAddr.
	PublicBaseURL string `env:"MODELGW_PUBLIC_BASE_URL"`

	// Explicit settings document path. When empty the store resolves its
	// own default location.
	SettingsPath string `env:"MODELGW_SETTINGS_PATH"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. Group or world readable files risk
// exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) normalize() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("MODELGW_LISTEN_ADDR must not be empty")
	}

	if c.PublicBaseURL == "" {
		c.PublicBaseURL = deriveBaseURL(c.ListenAddr)
	}

	if !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("MODELGW_PUBLIC_BASE_URL must start with http:// or https://, got %q", c.PublicBaseURL)
	}

	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")

	return nil
}

// deriveBaseURL maps a listen address to a localhost origin: ":8787"
// becomes http://localhost:8787, "0.0.0.0:8787" likewise.
func deriveBaseURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return "http://localhost"
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, port)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
