package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Defaults  DefaultsConfig  `json:"defaults" yaml:"defaults"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// DatabaseConfig locates the SQLite journal.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// DataConfig locates historical bar data.
type DataConfig struct {
	Dir string `json:"dir" yaml:"dir"` // directory of per-symbol CSV files
}

// SimulatorConfig tunes order execution.
type SimulatorConfig struct {
	MinDelay        string  `json:"min_delay" yaml:"min_delay"` // e.g. "1s"
	MaxDelay        string  `json:"max_delay" yaml:"max_delay"`
	FillProbability float64 `json:"fill_probability" yaml:"fill_probability"`
	Slippage        float64 `json:"slippage" yaml:"slippage"`
}

// ParseDelays converts the delay strings to durations.
func (s SimulatorConfig) ParseDelays() (min, max time.Duration, err error) {
	if min, err = time.ParseDuration(s.MinDelay); err != nil {
		return 0, 0, fmt.Errorf("simulator.min_delay: %w", err)
	}
	if max, err = time.ParseDuration(s.MaxDelay); err != nil {
		return 0, 0, fmt.Errorf("simulator.max_delay: %w", err)
	}
	return min, max, nil
}

// DefaultsConfig seeds new portfolios and backtests.
type DefaultsConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

// LoadFromFile loads configuration from a YAML or JSON file. YAML is tried
// first; anything that fails both parsers is rejected.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, choosing the format by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Simulator.FillProbability < 0 || c.Simulator.FillProbability > 1 {
		return fmt.Errorf("simulator.fill_probability must be between 0 and 1")
	}
	if c.Simulator.Slippage < 0 || c.Simulator.Slippage >= 1 {
		return fmt.Errorf("simulator.slippage must be in [0, 1)")
	}
	min, max, err := c.Simulator.ParseDelays()
	if err != nil {
		return err
	}
	if min < 0 || max < min {
		return fmt.Errorf("simulator delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.Defaults.InitialCapital <= 0 {
		return fmt.Errorf("defaults.initial_capital must be positive")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "./papertrader.db",
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Simulator: SimulatorConfig{
			MinDelay:        "1s",
			MaxDelay:        "3s",
			FillProbability: 0.95,
			Slippage:        0.001,
		},
		Defaults: DefaultsConfig{
			InitialCapital: 100000,
		},
	}
}
