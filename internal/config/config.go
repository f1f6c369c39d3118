// Package config loads StudyBoard settings from a JSON file with
// STUDYBOARD_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBackendURL = "http://localhost:8080"
	DefaultListenAddr = ":8080"
	DefaultDBPath     = "studyboard.db"
	DefaultDebounceMS = 1000
	DefaultLogLevel   = "info"

	envPrefix = "STUDYBOARD_"
)

// Config is the union of client and server settings.
type Config struct {
	BackendURL string `json:"backend_url,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Token      string `json:"token,omitempty"`
	DebounceMS int    `json:"debounce_ms,omitempty"`

	ListenAddr  string `json:"listen_addr,omitempty"`
	DBPath      string `json:"db_path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	Advertise   bool   `json:"advertise,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// DefaultPath is config.json under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "studyboard.json"
	}
	return filepath.Join(dir, "studyboard", "config.json")
}

// Load reads path (a missing file is not an error), applies environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	setString(&c.BackendURL, "BACKEND_URL")
	setString(&c.UserID, "USER_ID")
	setString(&c.Token, "TOKEN")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")

	// Invalid values fall through to the file or default.
	if v := os.Getenv(envPrefix + "DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DebounceMS = n
		}
	}
	if v := os.Getenv(envPrefix + "ADVERTISE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Advertise = b
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		if _, ok := ParseLevel(v); ok {
			c.LogLevel = v
		}
	}
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = DefaultDebounceMS
	}
	if _, ok := ParseLevel(c.LogLevel); !ok {
		c.LogLevel = DefaultLogLevel
	}
}

// Debounce is DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// NewLogger builds the process logger: JSON for the server, text otherwise.
func NewLogger(w io.Writer, level string, asJSON bool) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
