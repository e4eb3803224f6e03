package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("analysis url and token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONDUCTOR_ANALYSIS_URL", "https://plot.example")
		t.Setenv("CONDUCTOR_ANALYSIS_TOKEN", "secret")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "https://plot.example", cfg.Analysis.BaseURL)
		assert.Equal(t, "secret", cfg.Analysis.APIToken)
	})

	t.Run("GEMINI_API_KEY sets provider if empty", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Model.APIKey)
		assert.Equal(t, "gemini", cfg.Model.Provider)
	})

	t.Run("GEMINI_API_KEY does not override explicit provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{Model: ModelConfig{Provider: "none"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "none", cfg.Model.Provider)
	})

	t.Run("trace db and addr", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONDUCTOR_TRACE_DB", "/tmp/t.db")
		t.Setenv("CONDUCTOR_ADDR", ":9999")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/t.db", cfg.Store.TraceDB)
		assert.Equal(t, ":9999", cfg.Server.Addr)
	})

	t.Run("empty env leaves values alone", func(t *testing.T) {
		clearEnv(t)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultConfig(), cfg)
	})
}
