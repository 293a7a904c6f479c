// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// commtrail event service.
//
// Configuration comes from a single file named by the
// COMMTRAIL_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no search path and no automatic
// discovery; a missing file is an error, not a silent fallback, so a
// running service is always traceable to one config file.
//
// After loading, ${VAR} and ${VAR:-default} patterns in path fields
// are expanded from the environment. No other environment variables
// override config values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the event service configuration.
type Config struct {
	// SocketPath is the Unix socket the event service listens on.
	SocketPath string `yaml:"socket_path"`

	// Database configures the event store.
	Database DatabaseConfig `yaml:"database"`

	// Contacts configures the contact directory store.
	Contacts ContactsConfig `yaml:"contacts"`

	// Feed configures the subscription stream.
	Feed FeedConfig `yaml:"feed"`

	// Log configures service logging.
	Log LogConfig `yaml:"log"`
}

// DatabaseConfig locates the event store.
type DatabaseConfig struct {
	// Path is the SQLite file holding events.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero takes the
	// sqlitepool default.
	PoolSize int `yaml:"pool_size"`
}

// ContactsConfig locates the contact directory store.
type ContactsConfig struct {
	// Path is the SQLite file holding contacts and addresses.
	Path string `yaml:"path"`
}

// FeedConfig tunes the subscription stream.
type FeedConfig struct {
	// Heartbeat is the idle keepalive interval, as a Go duration
	// string. Default "30s".
	Heartbeat string `yaml:"heartbeat"`

	// Buffer is the per-subscriber frame buffer. A subscriber that
	// falls this far behind is told to resync. Default 64.
	Buffer int `yaml:"buffer"`
}

// HeartbeatInterval parses the heartbeat duration. Validate has
// already rejected unparseable values by the time the service runs.
func (f FeedConfig) HeartbeatInterval() time.Duration {
	d, err := time.ParseDuration(f.Heartbeat)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LogConfig controls service logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text, json, or auto. Auto picks text on a terminal
	// and json otherwise.
	Format string `yaml:"format"`
}

// Default returns the development defaults: data under
// ${HOME}/.local/share/commtrail, socket under XDG_RUNTIME_DIR.
func Default() *Config {
	return &Config{
		SocketPath: "${XDG_RUNTIME_DIR:-/tmp}/commtrail.sock",
		Database: DatabaseConfig{
			Path: "${HOME}/.local/share/commtrail/events.db",
		},
		Contacts: ContactsConfig{
			Path: "${HOME}/.local/share/commtrail/contacts.db",
		},
		Feed: FeedConfig{
			Heartbeat: "30s",
			Buffer:    64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the file named by COMMTRAIL_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("COMMTRAIL_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("COMMTRAIL_CONFIG not set; point it at your commtrail.yaml or pass --config")
	}
	return LoadFile(path)
}

// Resolve returns the effective configuration for client tools: the
// file at path when given, the COMMTRAIL_CONFIG file when that is
// set, otherwise the built-in defaults. Unlike [Load], an unset
// variable is not an error; clients fall back to the defaults where
// the service demands an explicit file.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv("COMMTRAIL_CONFIG") != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile reads one configuration file over the defaults and expands
// path variables. Absent fields keep their defaults; the file is
// still required to exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

func (c *Config) expandVariables() {
	c.SocketPath = expandVars(c.SocketPath)
	c.Database.Path = expandVars(c.Database.Path)
	c.Contacts.Path = expandVars(c.Contacts.Path)
}

// Validate checks the configuration, joining every problem into one
// error so a bad file reports all mistakes at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Database.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("database.pool_size must not be negative"))
	}
	if c.Contacts.Path == "" {
		errs = append(errs, fmt.Errorf("contacts.path is required"))
	}
	if d, err := time.ParseDuration(c.Feed.Heartbeat); err != nil {
		errs = append(errs, fmt.Errorf("feed.heartbeat: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("feed.heartbeat must be positive"))
	}
	if c.Feed.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("feed.buffer must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json, or auto"))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the parent directories of the configured
// files.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.SocketPath, c.Database.Path, c.Contacts.Path} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
	}
	return nil
}
