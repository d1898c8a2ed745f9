package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Auth service settings
	Auth AuthConfig `koanf:"auth"`

	// Background refresh settings
	Refresh RefreshConfig `koanf:"refresh"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Connectivity probe settings
	Connectivity ConnectivityConfig `koanf:"connectivity"`
}

// AuthConfig holds auth-service configuration.
type AuthConfig struct {
	BaseURL string `koanf:"base_url"` // e.g. "https://api.example.com"

	// Remaining token lifetime below which verify classifies the token
	// as expired so the client refreshes ahead of the server.
	ExpiryThresholdSeconds int `koanf:"expiry_threshold_seconds"` // default: 60
}

// RefreshConfig holds background refresh scheduling configuration.
type RefreshConfig struct {
	PeriodicIntervalSeconds int `koanf:"periodic_interval_seconds"` // default: 240
	AlarmOffsetSeconds      int `koanf:"alarm_offset_seconds"`      // default: 180
	MinPassIntervalSeconds  int `koanf:"min_pass_interval_seconds"` // default: 30

	// ExactAlarms reports whether the host grants exact wake scheduling.
	// When false the alarm trigger runs in inexact mode at half the offset.
	ExactAlarms *bool `koanf:"exact_alarms"` // default: true
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey     string `koanf:"api_key"`
	APISecret  string `koanf:"api_secret"`
	SessionKey string `koanf:"session_key"`
}

// ConnectivityConfig holds connectivity probe configuration.
type ConnectivityConfig struct {
	ProbeAddr          string `koanf:"probe_addr"`           // default: "1.1.1.1:443"
	CacheWindowSeconds int    `koanf:"cache_window_seconds"` // default: 5
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Normalize auth URL (remove trailing slash)
	cfg.Auth.BaseURL = strings.TrimSuffix(cfg.Auth.BaseURL, "/")

	applyDefaults(cfg)

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/vibra/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "vibra", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.ExpiryThresholdSeconds <= 0 {
		cfg.Auth.ExpiryThresholdSeconds = 60
	}
	if cfg.Refresh.PeriodicIntervalSeconds <= 0 {
		cfg.Refresh.PeriodicIntervalSeconds = 240
	}
	if cfg.Refresh.AlarmOffsetSeconds <= 0 {
		cfg.Refresh.AlarmOffsetSeconds = 180
	}
	if cfg.Refresh.MinPassIntervalSeconds <= 0 {
		cfg.Refresh.MinPassIntervalSeconds = 30
	}
	if cfg.Refresh.ExactAlarms == nil {
		exact := true
		cfg.Refresh.ExactAlarms = &exact
	}
	if cfg.Connectivity.ProbeAddr == "" {
		cfg.Connectivity.ProbeAddr = "1.1.1.1:443"
	}
	if cfg.Connectivity.CacheWindowSeconds <= 0 {
		cfg.Connectivity.CacheWindowSeconds = 5
	}
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// ExpiryThreshold returns the token expiry threshold as a duration.
func (c *Config) ExpiryThreshold() time.Duration {
	return time.Duration(c.Auth.ExpiryThresholdSeconds) * time.Second
}

// PeriodicInterval returns the periodic trigger interval as a duration.
func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.Refresh.PeriodicIntervalSeconds) * time.Second
}

// AlarmOffset returns the alarm trigger offset as a duration.
func (c *Config) AlarmOffset() time.Duration {
	return time.Duration(c.Refresh.AlarmOffsetSeconds) * time.Second
}

// MinPassInterval returns the minimum interval between refresh passes.
func (c *Config) MinPassInterval() time.Duration {
	return time.Duration(c.Refresh.MinPassIntervalSeconds) * time.Second
}

// ExactAlarmsAllowed reports whether exact alarm scheduling is available.
func (c *Config) ExactAlarmsAllowed() bool {
	return c.Refresh.ExactAlarms == nil || *c.Refresh.ExactAlarms
}

// CacheWindow returns how long a connectivity probe result stays valid.
func (c *Config) CacheWindow() time.Duration {
	return time.Duration(c.Connectivity.CacheWindowSeconds) * time.Second
}
