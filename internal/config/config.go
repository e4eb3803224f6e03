package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all conductor configuration.
type Config struct {
	Name string `yaml:"name"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Remote analysis service
	Analysis AnalysisConfig `yaml:"analysis"`

	// Turn handling and idempotency
	Turn  TurnConfig  `yaml:"turn"`
	Cache CacheConfig `yaml:"cache"`

	// Model adapter
	Model ModelConfig `yaml:"model"`

	// Turn trace persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// StoreConfig configures the SQLite turn trace store.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	TraceDB string `yaml:"trace_db"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "conductor",

		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "10s",
			WriteTimeout: "90s",
		},

		Analysis: DefaultAnalysisConfig(),

		Turn: TurnConfig{
			Budget:         "60s",
			MaxToolRounds:  3,
			RecentMessages: 12,
		},

		Cache: CacheConfig{
			MaxEntries: 1024,
			TTL:        "10m",
		},

		Model: ModelConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "45s",
		},

		Store: StoreConfig{
			Enabled: true,
			TraceDB: ".conductor/traces.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CONDUCTOR_ANALYSIS_URL"); url != "" {
		c.Analysis.BaseURL = url
	}
	if token := os.Getenv("CONDUCTOR_ANALYSIS_TOKEN"); token != "" {
		c.Analysis.APIToken = token
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Model.APIKey = key
		if c.Model.Provider == "" {
			c.Model.Provider = "gemini"
		}
	}
	if path := os.Getenv("CONDUCTOR_TRACE_DB"); path != "" {
		c.Store.TraceDB = path
	}
	if addr := os.Getenv("CONDUCTOR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 90*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Analysis.BaseURL == "" {
		return fmt.Errorf("analysis base_url not configured (set CONDUCTOR_ANALYSIS_URL)")
	}
	if err := c.Analysis.validate(); err != nil {
		return err
	}
	if err := c.ValidateLimits(); err != nil {
		return err
	}
	if err := c.Model.validate(); err != nil {
		return err
	}
	if c.Store.Enabled && c.Store.TraceDB == "" {
		return fmt.Errorf("store.trace_db must be set when the trace store is enabled")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
