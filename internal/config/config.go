// Package config handles TOML configuration loading with environment
// variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Downloads     DownloadsConfig     `toml:"downloads"`
	Defaults      DefaultsConfig      `toml:"defaults"`
	Cache         CacheConfig         `toml:"cache"`
	Subscriptions SubscriptionsConfig `toml:"subscriptions"`
	Cast          CastConfig          `toml:"cast"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`

	// AuthToken gates every /api route when set. Empty disables auth.
	AuthToken string `toml:"auth_token"`
}

type DatabaseConfig struct {
	HistoryPath       string `toml:"history_path"`
	SubscriptionsPath string `toml:"subscriptions_path"`
}

type DownloadsConfig struct {
	Dir           string        `toml:"dir"`
	MaxConcurrent int           `toml:"max_concurrent"`
	StallWindow   time.Duration `toml:"stall_window"`
	HistoryLimit  int           `toml:"history_limit"`
}

type DefaultsConfig struct {
	Language string `toml:"language"`
	Provider string `toml:"provider"`
}

type CacheConfig struct {
	PopularTTL time.Duration `toml:"popular_ttl"`
}

type SubscriptionsConfig struct {
	CheckInterval time.Duration `toml:"check_interval"`
	AutoDownload  bool          `toml:"auto_download"`
}

type CastConfig struct {
	DiscoverTimeout time.Duration `toml:"discover_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration usable without any config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8844
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.HistoryPath == "" {
		c.Database.HistoryPath = "./data/history.db"
	}
	if c.Database.SubscriptionsPath == "" {
		c.Database.SubscriptionsPath = "./data/subscriptions.db"
	}
	if c.Downloads.Dir == "" {
		c.Downloads.Dir = "./downloads"
	}
	if c.Downloads.MaxConcurrent == 0 {
		c.Downloads.MaxConcurrent = 3
	}
	if c.Downloads.StallWindow == 0 {
		c.Downloads.StallWindow = 60 * time.Second
	}
	if c.Downloads.HistoryLimit == 0 {
		c.Downloads.HistoryLimit = 50
	}
	if c.Defaults.Language == "" {
		c.Defaults.Language = "German Dub"
	}
	if c.Cache.PopularTTL == 0 {
		c.Cache.PopularTTL = 15 * time.Minute
	}
	if c.Subscriptions.CheckInterval == 0 {
		c.Subscriptions.CheckInterval = 30 * time.Minute
	}
	if c.Cast.DiscoverTimeout == 0 {
		c.Cast.DiscoverTimeout = 5 * time.Second
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match
	})
}
