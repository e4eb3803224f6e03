package config

import (
	"fmt"
	"time"
)

// ModelConfig configures the model adapter.
type ModelConfig struct {
	Provider string `yaml:"provider"` // gemini, none
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// ValidProviders lists all supported model providers.
var ValidProviders = []string{"gemini", "none"}

// GetTimeout returns the model call timeout as a duration.
func (m ModelConfig) GetTimeout() time.Duration {
	return parseDuration(m.Timeout, 45*time.Second)
}

// Enabled reports whether a model adapter should be constructed.
func (m ModelConfig) Enabled() bool {
	return m.Provider != "" && m.Provider != "none" && m.APIKey != ""
}

func (m ModelConfig) validate() error {
	if m.Provider == "" {
		return nil
	}
	for _, p := range ValidProviders {
		if m.Provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid model provider: %s (valid: %v)", m.Provider, ValidProviders)
}
