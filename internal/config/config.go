// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	DefaultProvider string                    `toml:"default_provider"`
	Providers       map[string]ProviderConfig `toml:"providers"`
	MCP             MCPConfig                 `toml:"mcp"`
	Agent           AgentConfig               `toml:"agent"`
	Compaction      CompactionConfig          `toml:"compaction"`
}

// AgentConfig holds agent-loop tuning parameters.
type AgentConfig struct {
	MaxToolRounds    int `toml:"max_tool_rounds"`
	ReminderInterval int `toml:"reminder_interval"`
}

// MaxToolRoundsOrDefault returns the configured round cap or 60 if unset.
func (a AgentConfig) MaxToolRoundsOrDefault() int {
	if a.MaxToolRounds <= 0 {
		return 60
	}
	return a.MaxToolRounds
}

// ReminderIntervalOrDefault returns the configured recitation interval or 10 if unset.
// A negative value is returned unchanged; the agent loop treats any value <= 0 as 10.
func (a AgentConfig) ReminderIntervalOrDefault() int {
	if a.ReminderInterval == 0 {
		return 10
	}
	return a.ReminderInterval
}

// CompactionConfig holds context-compaction tuning parameters.
type CompactionConfig struct {
	ContextWindow    int `toml:"context_window"`
	ReserveTokens    int `toml:"reserve_tokens"`
	KeepRecentTokens int `toml:"keep_recent_tokens"`
}

// ContextWindowOrDefault returns the configured context window or 128000 if unset.
func (c CompactionConfig) ContextWindowOrDefault() int {
	if c.ContextWindow <= 0 {
		return 128000
	}
	return c.ContextWindow
}

// ReserveTokensOrDefault returns the configured reserve or 8000 if unset.
func (c CompactionConfig) ReserveTokensOrDefault() int {
	if c.ReserveTokens <= 0 {
		return 8000
	}
	return c.ReserveTokens
}

// KeepRecentTokensOrDefault returns the configured keep-recent budget or 4000 if unset.
func (c CompactionConfig) KeepRecentTokensOrDefault() int {
	if c.KeepRecentTokens <= 0 {
		return 4000
	}
	return c.KeepRecentTokens
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Kind        string  `toml:"kind"`
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

// KindOrDefault returns the configured provider kind, defaulting to "ollama"
// for configs written before this field existed.
func (p ProviderConfig) KindOrDefault() string {
	if p.Kind == "" {
		return "ollama"
	}
	return p.Kind
}

// MCPConfig holds MCP proxy settings.
type MCPConfig struct {
	Upstream string `toml:"upstream"`
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	// Config file is required
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	// File must exist
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Load from file
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be configured"))
	} else {
		for name, providerCfg := range c.Providers {
			errs = append(errs, validateProviderConfig(name, providerCfg)...)
		}
	}

	// Validate default provider if specified
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider=%q does not exist in providers", c.DefaultProvider))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// providerKindsWithDefaultEndpoint lists kinds whose factory falls back to a
// public default endpoint when Endpoint is left unset.
var providerKindsWithDefaultEndpoint = map[string]bool{
	"zen":       true,
	"anthropic": true,
}

func validateProviderConfig(name string, cfg ProviderConfig) []error {
	var errs []error
	if cfg.Endpoint == "" {
		if !providerKindsWithDefaultEndpoint[cfg.KindOrDefault()] {
			errs = append(errs, fmt.Errorf("providers.%s.endpoint is required", name))
		}
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint=%q is invalid: %v", name, cfg.Endpoint, err))
	}

	if cfg.Model == "" {
		errs = append(errs, fmt.Errorf("providers.%s.model is required", name))
	}

	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("providers.%s.temperature=%v must be between 0.0 and 2.0", name, cfg.Temperature))
	}

	return errs
}

func validateEndpoint(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("missing scheme or host")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"AGENTCORE_MCP_ENDPOINT", func(v string) {
			if v != "" {
				cfg.MCP.Upstream = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}

// DataDir returns the path to the agentcore data directory (~/.config/agentcore).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agentcore"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}
