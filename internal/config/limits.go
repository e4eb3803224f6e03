package config

import (
	"fmt"
	"time"
)

// TurnConfig bounds a single turn.
type TurnConfig struct {
	Budget         string `yaml:"budget"`          // total wall-clock budget per turn
	MaxToolRounds  int    `yaml:"max_tool_rounds"` // model/tool round trips per turn
	RecentMessages int    `yaml:"recent_messages"` // history window sent to the model
}

// CacheConfig bounds the idempotency cache.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	TTL        string `yaml:"ttl"`
}

// GetBudget returns the turn budget as a duration.
func (t TurnConfig) GetBudget() time.Duration {
	return parseDuration(t.Budget, 60*time.Second)
}

// GetTTL returns the idempotency entry lifetime as a duration.
func (c CacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 10*time.Minute)
}

// ValidateLimits checks that turn and cache limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Turn.MaxToolRounds < 1 {
		return fmt.Errorf("turn.max_tool_rounds must be >= 1")
	}
	if c.Turn.RecentMessages < 0 {
		return fmt.Errorf("turn.recent_messages must be >= 0")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be >= 1")
	}
	if c.Turn.GetBudget() <= c.Analysis.GetMinRetryBudget() {
		return fmt.Errorf("turn.budget must exceed analysis.min_retry_budget")
	}
	return nil
}
