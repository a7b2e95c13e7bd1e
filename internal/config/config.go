// Package config loads and validates the coordinator's JSON configuration
// file, and can watch it for edits so the invite TTL and connect timeout
// apply without a process restart. The listener-attach retry schedule is
// read once, when the coordinator is constructed.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the coordinator's full on-disk configuration.
type Config struct {
	Signaling Signaling `json:"signaling"`
	Timeouts  Timeouts  `json:"timeouts"`
	History   History   `json:"history"`
}

// Signaling configures the bidirectional signaling channel endpoint.
type Signaling struct {
	// ListenAddr is the host:port the WS signaling server binds to.
	ListenAddr string `json:"listen_addr"`
	// Path is the HTTP path upgraded to a WebSocket connection.
	Path string `json:"path"`
}

// Timeouts configures §6's timing constants.
type Timeouts struct {
	InviteTTLSeconds        int `json:"invite_ttl_seconds"`
	ConnectTimeoutSeconds   int `json:"connect_timeout_seconds"`
	ListenerRetryAttempts   int `json:"listener_retry_attempts"`
	ListenerRetryIntervalMS int `json:"listener_retry_interval_ms"`
}

// InviteTTL returns the invite TTL as a time.Duration.
func (t Timeouts) InviteTTL() time.Duration {
	return time.Duration(t.InviteTTLSeconds) * time.Second
}

// ConnectTimeout returns the connect timeout as a time.Duration.
func (t Timeouts) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutSeconds) * time.Second
}

// ListenerRetryInterval returns the listener-attach retry interval.
func (t Timeouts) ListenerRetryInterval() time.Duration {
	return time.Duration(t.ListenerRetryIntervalMS) * time.Millisecond
}

// History configures the call-history persistence layer.
type History struct {
	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath string `json:"db_path"`
}

// Default returns the configuration matching §6's constants.
func Default() Config {
	return Config{
		Signaling: Signaling{
			ListenAddr: "127.0.0.1:8765",
			Path:       "/signaling",
		},
		Timeouts: Timeouts{
			InviteTTLSeconds:        30,
			ConnectTimeoutSeconds:   30,
			ListenerRetryAttempts:   30,
			ListenerRetryIntervalMS: 500,
		},
		History: History{
			DBPath: "data/callhistory.db",
		},
	}
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Signaling.ListenAddr) == "" {
		return errors.New("signaling.listen_addr is required")
	}
	if strings.TrimSpace(c.Signaling.Path) == "" {
		return errors.New("signaling.path is required")
	}
	if !strings.HasPrefix(c.Signaling.Path, "/") {
		return errors.New("signaling.path must start with /")
	}

	if c.Timeouts.InviteTTLSeconds <= 0 {
		return errors.New("timeouts.invite_ttl_seconds must be > 0")
	}
	if c.Timeouts.ConnectTimeoutSeconds <= 0 {
		return errors.New("timeouts.connect_timeout_seconds must be > 0")
	}
	if c.Timeouts.ListenerRetryAttempts <= 0 {
		return errors.New("timeouts.listener_retry_attempts must be > 0")
	}
	if c.Timeouts.ListenerRetryIntervalMS <= 0 {
		return errors.New("timeouts.listener_retry_interval_ms must be > 0")
	}

	if dbPath := strings.TrimSpace(c.History.DBPath); dbPath != "" {
		if err := validateDBPath(dbPath); err != nil {
			return fmt.Errorf("history.db_path: %w", err)
		}
	}

	return nil
}

func validateDBPath(raw string) error {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return errors.New("must be a filesystem path, not a URL")
	}
	return nil
}

// Load reads and validates a configuration file, starting from Default so
// missing JSON fields stay initialized.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Save validates and writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	b = append(b, '\n')

	return os.WriteFile(path, b, 0o644)
}

// Ensure loads the config at path if present, otherwise writes and returns
// the default configuration. Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
