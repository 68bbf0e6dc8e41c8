// Package config provides configuration loading for onedev.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level daemon configuration.
type Config struct {
	Site     SiteConfig     `koanf:"site"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SiteConfig locates the on-disk site: project git directories and derived
// info live under Dir.
type SiteConfig struct {
	Dir string `koanf:"dir"`
}

// DatabaseConfig locates the entity store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the operational HTTP endpoint (health, metrics).
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Site.Dir == "" {
		return fmt.Errorf("site.dir must be set")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// applyDefaults fills in any field left empty by file and environment.
func applyDefaults(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if cfg.Site.Dir == "" {
		cfg.Site.Dir = filepath.Join(home, ".onedev", "site")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(home, ".onedev", "onedev.db")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":6610"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
