// Package config loads billcard settings from a YAML file, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Port     int            `yaml:"port"`
	DBPath   string         `yaml:"db"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
	Labels   LabelConfig    `yaml:"labels"`
	Audit    AuditConfig    `yaml:"audit"`
}

// UpstreamConfig points at the transaction API.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls the in-memory transaction cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LedgerConfig controls date handling.
type LedgerConfig struct {
	Timezone       string `yaml:"timezone"`
	FallbackWindow bool   `yaml:"fallback_window"`
	FallbackYears  int    `yaml:"fallback_years_back"`
	FallbackAhead  int    `yaml:"fallback_years_ahead"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LabelConfig controls QR label rendering.
type LabelConfig struct {
	Size    int    `yaml:"size"`
	BaseURL string `yaml:"base_url"`
}

// AuditConfig controls audit log retention. Zero RetentionDays keeps everything.
type AuditConfig struct {
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     9000,
		DBPath:   "billcard.db",
		Upstream: UpstreamConfig{BaseURL: "http://localhost:8080/api", Timeout: 30 * time.Second},
		Cache:    CacheConfig{TTL: 5 * time.Minute},
		Ledger:   LedgerConfig{Timezone: "Local", FallbackWindow: true, FallbackYears: 5, FallbackAhead: 1},
		Log:      LogConfig{Level: "info", Format: "console"},
		Labels:   LabelConfig{Size: 256},
		Audit:    AuditConfig{RetentionDays: 90, CleanupInterval: 24 * time.Hour},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides upstream settings from BILLCARD_UPSTREAM_URL and BILLCARD_UPSTREAM_TOKEN.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BILLCARD_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("BILLCARD_UPSTREAM_TOKEN"); v != "" {
		c.Upstream.Token = v
	}
}

// BindFlags registers flags that override the loaded values.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite audit database path")
	fs.StringVar(&c.Upstream.BaseURL, "upstream", c.Upstream.BaseURL, "transaction API base URL")
	fs.DurationVar(&c.Cache.TTL, "cache-ttl", c.Cache.TTL, "transaction cache TTL")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format (console or json)")
	fs.IntVar(&c.Audit.RetentionDays, "audit-retention-days", c.Audit.RetentionDays, "days of audit history to keep (0 keeps all)")
}

// Validate checks the values the service cannot run without.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream base_url is required")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if c.Audit.RetentionDays < 0 {
		return errors.New("audit retention_days must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Ledger.Timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Ledger.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger timezone: %w", err)
	}
	return loc, nil
}
