package config

import (
	"fmt"
	"time"
)

// AnalysisConfig configures the remote analysis client.
//
// The per-call Timeout is independent of the turn budget and is normally
// shorter than it. A failed call is retried at most once, after Backoff, and
// only if at least MinRetryBudget of the turn budget would remain afterwards.
type AnalysisConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIToken       string `yaml:"api_token"`
	Timeout        string `yaml:"timeout"`
	Backoff        string `yaml:"backoff"`
	MinRetryBudget string `yaml:"min_retry_budget"`
}

// DefaultAnalysisConfig returns the analysis defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		BaseURL:        "http://localhost:4000",
		Timeout:        "20s",
		Backoff:        "500ms",
		MinRetryBudget: "2s",
	}
}

// GetTimeout returns the per-call timeout.
func (a AnalysisConfig) GetTimeout() time.Duration {
	return parseDuration(a.Timeout, 20*time.Second)
}

// GetBackoff returns the pause before the single retry.
func (a AnalysisConfig) GetBackoff() time.Duration {
	return parseDuration(a.Backoff, 500*time.Millisecond)
}

// GetMinRetryBudget returns the budget floor below which retries are skipped.
func (a AnalysisConfig) GetMinRetryBudget() time.Duration {
	return parseDuration(a.MinRetryBudget, 2*time.Second)
}

func (a AnalysisConfig) validate() error {
	for name, v := range map[string]string{
		"analysis.timeout":          a.Timeout,
		"analysis.backoff":          a.Backoff,
		"analysis.min_retry_budget": a.MinRetryBudget,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}
