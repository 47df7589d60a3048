package config

import (
	"fmt"

	"github.com/fetcharr/fetcharr/internal/provider"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	if c.Downloads.MaxConcurrent < 1 {
		errs = append(errs, fmt.Sprintf("downloads.max_concurrent: must be at least 1, got %d", c.Downloads.MaxConcurrent))
	}
	if c.Downloads.StallWindow < 0 {
		errs = append(errs, "downloads.stall_window: must not be negative")
	}
	if c.Downloads.HistoryLimit < 1 {
		errs = append(errs, fmt.Sprintf("downloads.history_limit: must be at least 1, got %d", c.Downloads.HistoryLimit))
	}

	if c.Defaults.Provider != "" && !knownProvider(c.Defaults.Provider) {
		errs = append(errs, fmt.Sprintf("defaults.provider: unknown provider %q", c.Defaults.Provider))
	}

	if c.Subscriptions.CheckInterval < 0 {
		errs = append(errs, "subscriptions.check_interval: must not be negative")
	}

	return errs
}

func knownProvider(name string) bool {
	for _, p := range provider.DefaultOrder {
		if p == name {
			return true
		}
	}
	return false
}
