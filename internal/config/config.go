// Package config loads the engine configuration from TOML or YAML files,
// an optional .env file and CONCORD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CONCORD_"

// Session identifies the local user
type Session struct {
	UserID string `toml:"user_id" yaml:"user_id"`
	Token  string `toml:"token" yaml:"token"`
}

// Links configures deep-link recognition
type Links struct {
	Hosts   []string `toml:"hosts" yaml:"hosts"`       // http(s) hosts accepted as deep links
	BaseURL string   `toml:"base_url" yaml:"base_url"` // used when building share links
}

// Navigation configures the dispatcher and the protection timer
type Navigation struct {
	ReplyTimeoutMs        int `toml:"reply_timeout_ms" yaml:"reply_timeout_ms"`
	CrossChannelTimeoutMs int `toml:"cross_channel_timeout_ms" yaml:"cross_channel_timeout_ms"`
	FetchTimeoutMs        int `toml:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
	HistoryLimit          int `toml:"history_limit" yaml:"history_limit"` // 0 = unbounded
}

// Cache sizes the in-memory caches
type Cache struct {
	KnownChannels      int `toml:"known_channels" yaml:"known_channels"`
	MessagesPerChannel int `toml:"messages_per_channel" yaml:"messages_per_channel"`
}

// API configures the REST fetcher
type API struct {
	ServerAddr     string `toml:"server_addr" yaml:"server_addr"` // empty disables remote fetches
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Gateway configures the event feed reconnect policy
type Gateway struct {
	MaxRetries     int     `toml:"max_retries" yaml:"max_retries"` // negative retries forever
	InitialDelayMs int     `toml:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs     int     `toml:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffFactor  float64 `toml:"backoff_factor" yaml:"backoff_factor"`
}

// HTTP configures the preview API server
type HTTP struct {
	Host                   string `toml:"host" yaml:"host"`
	Port                   int    `toml:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// Database configures the SQLite entity store
type Database struct {
	Path string `toml:"path" yaml:"path"`
}

// Logging configures slog
type Logging struct {
	Level string `toml:"level" yaml:"level"` // debug, info, warn, error
}

// Theme selects the terminal palette
type Theme struct {
	Palette string `toml:"palette" yaml:"palette"`
	Color   bool   `toml:"color" yaml:"color"`
}

// Config holds the complete configuration
type Config struct {
	Session    Session           `toml:"session" yaml:"session"`
	Links      Links             `toml:"links" yaml:"links"`
	Navigation Navigation        `toml:"navigation" yaml:"navigation"`
	Cache      Cache             `toml:"cache" yaml:"cache"`
	API        API               `toml:"api" yaml:"api"`
	Gateway    Gateway           `toml:"gateway" yaml:"gateway"`
	HTTP       HTTP              `toml:"http" yaml:"http"`
	Database   Database          `toml:"database" yaml:"database"`
	Logging    Logging           `toml:"logging" yaml:"logging"`
	Theme      Theme             `toml:"theme" yaml:"theme"`
	Shortcodes map[string]string `toml:"shortcodes" yaml:"shortcodes"` // alias name -> custom emoji id
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Links: Links{
			Hosts:   []string{"concord.chat"},
			BaseURL: "https://concord.chat",
		},
		Navigation: Navigation{
			ReplyTimeoutMs:        3000,
			CrossChannelTimeoutMs: 10000,
			FetchTimeoutMs:        5000,
			HistoryLimit:          50,
		},
		Cache: Cache{
			KnownChannels:      4096,
			MessagesPerChannel: 1000,
		},
		API: API{
			TimeoutSeconds: 10,
		},
		Gateway: Gateway{
			MaxRetries:     5,
			InitialDelayMs: 2000,
			MaxDelayMs:     30000,
			BackoffFactor:  2.0,
		},
		HTTP: HTTP{
			Host:                   "127.0.0.1",
			Port:                   8080,
			ShutdownTimeoutSeconds: 10,
		},
		Database: Database{
			Path: "concord.db",
		},
		Logging: Logging{
			Level: "info",
		},
		Theme: Theme{
			Palette: "default",
			Color:   true,
		},
	}
}

// Load reads the configuration file at path on top of the defaults, then
// applies environment overrides. An empty path skips the file. Files ending
// in .yml or .yaml are parsed as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}
	return nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CONCORD_* variables found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("USER_ID", &c.Session.UserID)
	str("TOKEN", &c.Session.Token)
	str("BASE_URL", &c.Links.BaseURL)
	str("SERVER_ADDR", &c.API.ServerAddr)
	str("HTTP_HOST", &c.HTTP.Host)
	str("DB_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Logging.Level)
	str("PALETTE", &c.Theme.Palette)

	if v, ok := lookup(EnvPrefix + "LINK_HOSTS"); ok && v != "" {
		c.Links.Hosts = nil
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				c.Links.Hosts = append(c.Links.Hosts, h)
			}
		}
	}

	for key, dst := range map[string]*int{
		"REPLY_TIMEOUT_MS":         &c.Navigation.ReplyTimeoutMs,
		"CROSS_CHANNEL_TIMEOUT_MS": &c.Navigation.CrossChannelTimeoutMs,
		"FETCH_TIMEOUT_MS":         &c.Navigation.FetchTimeoutMs,
		"HTTP_PORT":                &c.HTTP.Port,
		"GATEWAY_MAX_RETRIES":      &c.Gateway.MaxRetries,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Navigation.ReplyTimeoutMs <= 0 {
		return fmt.Errorf("navigation.reply_timeout_ms must be positive")
	}
	if c.Navigation.CrossChannelTimeoutMs <= 0 {
		return fmt.Errorf("navigation.cross_channel_timeout_ms must be positive")
	}
	if c.Navigation.FetchTimeoutMs <= 0 {
		return fmt.Errorf("navigation.fetch_timeout_ms must be positive")
	}
	if c.Navigation.HistoryLimit < 0 {
		return fmt.Errorf("navigation.history_limit must not be negative")
	}
	if c.Cache.KnownChannels <= 0 {
		return fmt.Errorf("cache.known_channels must be positive")
	}
	if c.Cache.MessagesPerChannel <= 0 {
		return fmt.Errorf("cache.messages_per_channel must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be a valid port number (1-65535)")
	}
	if c.HTTP.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("http.shutdown_timeout_seconds must be positive")
	}
	if c.Gateway.InitialDelayMs <= 0 || c.Gateway.MaxDelayMs < c.Gateway.InitialDelayMs {
		return fmt.Errorf("gateway delays must be positive with max_delay_ms >= initial_delay_ms")
	}
	if c.Gateway.BackoffFactor < 1 {
		return fmt.Errorf("gateway.backoff_factor must be at least 1")
	}
	if c.API.ServerAddr != "" && c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel maps logging.level to a slog level
func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
}

// NewLogger builds the text logger used by the binaries
func (c *Config) NewLogger() *slog.Logger {
	level, _ := c.LogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Address returns the preview API listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// ReplyTimeout returns the in-channel protection timeout
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Navigation.ReplyTimeoutMs) * time.Millisecond
}

// CrossChannelTimeout returns the cross-channel protection timeout
func (c *Config) CrossChannelTimeout() time.Duration {
	return time.Duration(c.Navigation.CrossChannelTimeoutMs) * time.Millisecond
}

// FetchTimeout returns the bound on dispatcher fetches
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Navigation.FetchTimeoutMs) * time.Millisecond
}

// APITimeout returns the REST client timeout
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the preview API graceful shutdown bound
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutSeconds) * time.Second
}
