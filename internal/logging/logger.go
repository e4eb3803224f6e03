// Package logging provides config-driven categorized logging for conductor.
// Every entry goes through a single process-wide zap logger and carries a
// "category" field; categories can be switched off individually in config.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Boot/initialization
	CategoryAPI      Category = "api"      // HTTP surface
	CategoryTurn     Category = "turn"     // Turn handling, envelope assembly
	CategoryRouting  Category = "routing"  // Intent gate and dispatch decisions
	CategoryContext  Category = "context"  // Context assembly and fallback
	CategoryAnalysis Category = "analysis" // Remote analysis client
	CategoryModel    Category = "model"    // Model adapter calls
	CategoryCache    Category = "cache"    // Idempotency cache
	CategoryStore    Category = "store"    // Turn trace persistence
	CategoryConfig   Category = "config"   // Config load and hot reload
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	Format     string // json, console
	DebugMode  bool
	Categories map[string]bool
}

// Logger is a category-scoped sugared logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the process logger from cfg and installs it.
// The returned logger is the same one used by Get, for callers that want
// to Sync it on shutdown.
func Initialize(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := parseLevel(cfg.Level, cfg.DebugMode)
	if err != nil {
		return nil, err
	}
	level.SetLevel(lvl)
	zcfg.Level = level

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	Install(l, cfg.Categories)
	return l, nil
}

// Install replaces the process logger. Tests use it with an observer core.
func Install(l *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

// SetLevel changes the minimum level at runtime.
func SetLevel(name string) error {
	lvl, err := parseLevel(name, false)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// SetCategories replaces the per-category toggles at runtime.
func SetCategories(cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	categories = cats
	loggers = make(map[Category]*Logger)
}

func parseLevel(name string, debug bool) (zapcore.Level, error) {
	if debug {
		return zapcore.DebugLevel, nil
	}
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories not listed are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if categoryEnabledLocked(category) {
		l.sugar = base.With(zap.String("category", string(category))).Sugar()
	} else {
		l.sugar = zap.NewNop().Sugar()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// WithFields returns a logger that adds key-value context to every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// Redact replaces every occurrence of secret in s. Empty secrets are ignored.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}

// =============================================================================
// CONVENIENCE HELPERS
// =============================================================================

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

func Turn(format string, args ...interface{}) {
	Get(CategoryTurn).Info(format, args...)
}

func TurnDebug(format string, args ...interface{}) {
	Get(CategoryTurn).Debug(format, args...)
}

func Routing(format string, args ...interface{}) {
	Get(CategoryRouting).Info(format, args...)
}

func Context(format string, args ...interface{}) {
	Get(CategoryContext).Info(format, args...)
}

func Analysis(format string, args ...interface{}) {
	Get(CategoryAnalysis).Info(format, args...)
}

func AnalysisDebug(format string, args ...interface{}) {
	Get(CategoryAnalysis).Debug(format, args...)
}

func Model(format string, args ...interface{}) {
	Get(CategoryModel).Info(format, args...)
}

func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}

func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

func ConfigEvent(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}
