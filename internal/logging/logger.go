// Package logging provides categorized logging for chatstage, backed by zap.
// Each subsystem logs under its own named category so a noisy conversation
// run can be filtered down to a single stage (assembly, delivery, store...).
// When debug mode is off only warnings and errors are emitted.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config loading
	CategoryStore     Category = "store"     // SQLite repository operations
	CategoryContext   Category = "context"   // Context assembly
	CategoryGateway   Category = "gateway"   // LLM API calls
	CategoryParser    Category = "parser"    // Completion parsing
	CategoryScheduler Category = "scheduler" // Delivery pacing
	CategoryMemory    Category = "memory"    // Memory compaction
	CategorySession   Category = "session"   // Orchestrator turns
	CategoryLorebook  Category = "lorebook"  // Lorebook import/watch
)

var (
	mu      sync.RWMutex
	root    *zap.SugaredLogger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the process-wide logger. debug enables DebugLevel and
// console encoding; production mode uses the zap production config.
// Safe to call more than once; the last call wins.
func Initialize(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger.Sugar()
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the logger for a category, creating it on first use.
// Before Initialize is called it falls back to a no-op logger so library
// code can log unconditionally.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = zap.NewNop().Sugar()
	}
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Convenience helpers for the hot paths.

func Session(format string, args ...interface{}) {
	Get(CategorySession).Infof(format, args...)
}

func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debugf(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}

func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debugf(format, args...)
}

func MemoryDebug(format string, args ...interface{}) {
	Get(CategoryMemory).Debugf(format, args...)
}

func GatewayDebug(format string, args ...interface{}) {
	Get(CategoryGateway).Debugf(format, args...)
}

func Lorebook(format string, args ...interface{}) {
	Get(CategoryLorebook).Infof(format, args...)
}
