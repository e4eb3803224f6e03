package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func installObserver(t *testing.T, cats map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Install(zap.New(core), cats)
	t.Cleanup(func() { Install(zap.NewNop(), nil) })
	return logs
}

// TestAllCategoriesLog tests that every category writes with its category field
func TestAllCategoriesLog(t *testing.T) {
	logs := installObserver(t, nil)

	categories := []Category{
		CategoryBoot,
		CategoryAPI,
		CategoryTurn,
		CategoryRouting,
		CategoryContext,
		CategoryAnalysis,
		CategoryModel,
		CategoryCache,
		CategoryStore,
		CategoryConfig,
	}

	for _, cat := range categories {
		assert.True(t, IsCategoryEnabled(cat), "category %s should be enabled", cat)
		Get(cat).Info("info for %s", cat)
	}

	entries := logs.All()
	require.Len(t, entries, len(categories))
	for i, cat := range categories {
		assert.Equal(t, "info for "+string(cat), entries[i].Message)
		assert.Equal(t, string(cat), entries[i].ContextMap()["category"])
	}
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := installObserver(t, map[string]bool{"cache": false, "turn": true})

	assert.False(t, IsCategoryEnabled(CategoryCache))
	assert.True(t, IsCategoryEnabled(CategoryTurn))
	assert.True(t, IsCategoryEnabled(CategoryRouting), "unlisted categories default to enabled")

	Get(CategoryCache).Error("should not appear")
	Turn("turn message")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "turn message", logs.All()[0].Message)
}

func TestSetCategoriesRebuildsLoggers(t *testing.T) {
	logs := installObserver(t, nil)

	Routing("before")
	SetCategories(map[string]bool{"routing": false})
	Routing("after")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "before", logs.All()[0].Message)
}

func TestWithFields(t *testing.T) {
	logs := installObserver(t, nil)

	Get(CategoryAnalysis).WithFields(map[string]interface{}{"request_id": "req-1"}).Warn("slow call")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  zapcore.Level
	}{
		{"", false, zapcore.InfoLevel},
		{"debug", false, zapcore.DebugLevel},
		{"WARNING", false, zapcore.WarnLevel},
		{"error", false, zapcore.ErrorLevel},
		{"error", true, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.name, tt.debug)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "level %q debug=%v", tt.name, tt.debug)
	}

	_, err := parseLevel("verbose", false)
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "Bearer [REDACTED]", Redact("Bearer sk-123", "sk-123"))
	assert.Equal(t, "nothing to hide", Redact("nothing to hide", ""))
}

func TestAuditEvents(t *testing.T) {
	logs := installObserver(t, nil)

	a := AuditWithRequest("req-9", "turn-9")
	a.Event(AuditToolInvoke, "run_analysis", map[string]interface{}{"attempt": 1})
	a.Failure(AuditRemoteCall, "run", errors.New("status 503"), 120*time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "tool_invoke", first["audit"])
	assert.Equal(t, "req-9", first["request_id"])
	assert.Equal(t, "turn-9", first["turn_id"])
	assert.Equal(t, "run_analysis", first["target"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	second := entries[1].ContextMap()
	assert.Equal(t, "status 503", second["error"])
	assert.Equal(t, int64(120), second["dur_ms"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
