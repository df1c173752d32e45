// ABOUTME: Configuration loading and parsing for turnstream
// ABOUTME: Handles YAML/TOML parsing, env var expansion, durations, and validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete turnstream configuration
type Config struct {
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Mock      MockConfig      `yaml:"mock" toml:"mock"`
	Ledger    LedgerConfig    `yaml:"ledger" toml:"ledger"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// SessionConfig holds per-turn defaults
type SessionConfig struct {
	ID                   string `yaml:"id" toml:"id"`
	DeepThinkingMode     bool   `yaml:"deep_thinking_mode" toml:"deep_thinking_mode"`
	SearchBeforePlanning bool   `yaml:"search_before_planning" toml:"search_before_planning"`
}

// TransportConfig holds the live chat-stream endpoint settings
type TransportConfig struct {
	URL   string `yaml:"url" toml:"url"`
	Token string `yaml:"token" toml:"token"`

	// Timeout bounds the wait for response headers, not the stream itself
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// MockConfig holds settings for the scripted event source
type MockConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	ScenarioFile string `yaml:"scenario_file" toml:"scenario_file"`
	Default      string `yaml:"default" toml:"default"`
	FreshIDs     bool   `yaml:"fresh_ids" toml:"fresh_ids"`

	Delay    time.Duration `yaml:"-" toml:"-"`
	DelayRaw string        `yaml:"delay" toml:"delay"`
}

// LedgerConfig holds turn ledger settings. An empty path disables the ledger.
type LedgerConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Session: SessionConfig{ID: "default"},
		Transport: TransportConfig{
			URL:        "http://localhost:8000/api/chat/stream",
			Timeout:    30 * time.Second,
			TimeoutRaw: "30s",
		},
		Mock:    MockConfig{FreshIDs: true},
		Server:  ServerConfig{Addr: "127.0.0.1:8000"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Values missing from the file keep their Default() values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Session.ID == "" {
		return fmt.Errorf("session.id is required")
	}

	if !c.Mock.Enabled && c.Transport.URL == "" {
		return fmt.Errorf("transport.url is required (or enable mock)")
	}

	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport.timeout must not be negative")
	}
	if c.Mock.Delay < 0 {
		return fmt.Errorf("mock.delay must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Transport.TimeoutRaw != "" {
		cfg.Transport.Timeout, err = time.ParseDuration(cfg.Transport.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing transport.timeout %q: %w", cfg.Transport.TimeoutRaw, err)
		}
	}

	if cfg.Mock.DelayRaw != "" {
		cfg.Mock.Delay, err = time.ParseDuration(cfg.Mock.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing mock.delay %q: %w", cfg.Mock.DelayRaw, err)
		}
	}

	return nil
}
