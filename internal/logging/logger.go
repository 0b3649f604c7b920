// Package logging provides categorized structured logging for driftwatch.
// Every category is a named child of one zap logger. Until Initialize is
// called, and for categories switched off in config, loggers are no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and config loading
	CategoryConflict  Category = "conflict"  // Detection, resolution, acknowledgment
	CategoryDiff      Category = "diff"      // Line diff computation
	CategoryStore     Category = "store"     // Baseline store (SQLite)
	CategoryWorkspace Category = "workspace" // Filesystem reads and restores
	CategoryWatch     Category = "watch"     // fsnotify change watcher
	CategoryCLI       Category = "cli"       // Command-line front end
	CategoryAudit     Category = "audit"     // Resolution audit trail
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty means stderr
	Categories map[string]bool // missing entries are enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from opts and replaces any previous
// one.
func Initialize(opts Options) error {
	var zcfg zap.Config
	if opts.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{opts.File}
		zcfg.ErrorOutputPaths = []string{opts.File}
	}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetLogger(l, opts.Categories)
	Get(CategoryBoot).Info("logging initialized (level=%s format=%s)", level, zcfg.Encoding)
	return nil
}

// SetLogger installs an already-built zap logger. Passing nil restores the
// no-op logger.
func SetLogger(l *zap.Logger, cats map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Root().Sync()
}

// IsCategoryEnabled reports whether the category is switched on.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

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
	l := &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the underlying structured logger for field-based logging.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// With returns a logger that attaches the given zap fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.Desugar().With(fields...).Sugar()}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CATEGORY HELPERS
// =============================================================================

func Boot(format string, args ...interface{})           { Get(CategoryBoot).Info(format, args...) }
func Conflict(format string, args ...interface{})       { Get(CategoryConflict).Info(format, args...) }
func ConflictDebug(format string, args ...interface{})  { Get(CategoryConflict).Debug(format, args...) }
func Store(format string, args ...interface{})          { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})     { Get(CategoryStore).Debug(format, args...) }
func Workspace(format string, args ...interface{})      { Get(CategoryWorkspace).Info(format, args...) }
func WorkspaceDebug(format string, args ...interface{}) { Get(CategoryWorkspace).Debug(format, args...) }
func Watch(format string, args ...interface{})          { Get(CategoryWatch).Info(format, args...) }
func WatchDebug(format string, args ...interface{})     { Get(CategoryWatch).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Zap().Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Zap().Warn(t.op+" slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		Get(t.category).Zap().Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
