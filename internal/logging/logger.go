// Package logging provides config-driven categorized logging for zonegate.
// Every category is a named child of a single zap logger; disabled categories
// get a no-op logger so call sites never need to check.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, config loading
	CategorySession      Category = "session"      // Session store load/save
	CategoryRouting      Category = "routing"      // Stage transitions
	CategoryPerception   Category = "perception"   // Language model gateway
	CategoryResolver     Category = "resolver"     // Entity resolution
	CategoryDecision     Category = "decision"     // Rule evaluation
	CategoryCatalog      Category = "catalog"      // Vehicle/zone/policy sources
	CategoryAPI          Category = "api"          // HTTP and websocket transport
	CategoryTransparency Category = "transparency" // Stage traces
)

// AllCategories lists every category known to the logging system.
var AllCategories = []Category{
	CategoryBoot,
	CategorySession,
	CategoryRouting,
	CategoryPerception,
	CategoryResolver,
	CategoryDecision,
	CategoryCatalog,
	CategoryAPI,
	CategoryTransparency,
}

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // json or console
	Output     string          // stderr, stdout or a file path
	Categories map[string]bool // nil enables every category
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	current Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the zap backend from cfg and resets cached loggers.
func Initialize(cfg Config) error {
	level, err := zapcore.ParseLevel(strings.ToLower(orDefault(cfg.Level, "info")))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch orDefault(cfg.Format, "json") {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	out := orDefault(cfg.Output, "stderr")
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Use(logger, cfg)
	return nil
}

// Use installs an existing zap logger as the backend. The CLI uses this to
// share its root logger; tests use it with an observer core.
func Use(logger *zap.Logger, cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	base = logger
	current = cfg
	loggers = make(map[Category]*Logger)
}

// Reset restores the no-op backend.
func Reset() {
	Use(nil, Config{})
}

// Sync flushes the backend. Errors from syncing stderr are ignored.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

// IsCategoryEnabled reports whether category is enabled by the current config.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if current.Categories == nil {
		return true
	}
	enabled, ok := current.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for category.
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

	var sugar *zap.SugaredLogger
	if categoryEnabled(category) {
		sugar = base.Named(string(category)).Sugar()
	} else {
		sugar = zap.NewNop().Sugar()
	}
	l := &Logger{category: category, sugar: sugar}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the category of the logger.
func (l *Logger) Category() Category { return l.category }

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// WithRequestID creates a request-scoped logger for correlating a turn.
func WithRequestID(category Category, requestID string) *Logger {
	return Get(category).With("trace_id", requestID)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func Routing(format string, args ...interface{})      { Get(CategoryRouting).Info(format, args...) }
func RoutingDebug(format string, args ...interface{}) { Get(CategoryRouting).Debug(format, args...) }
func RoutingWarn(format string, args ...interface{})  { Get(CategoryRouting).Warn(format, args...) }
func RoutingError(format string, args ...interface{}) { Get(CategoryRouting).Error(format, args...) }

func Perception(format string, args ...interface{})      { Get(CategoryPerception).Info(format, args...) }
func PerceptionDebug(format string, args ...interface{}) { Get(CategoryPerception).Debug(format, args...) }
func PerceptionWarn(format string, args ...interface{})  { Get(CategoryPerception).Warn(format, args...) }
func PerceptionError(format string, args ...interface{}) { Get(CategoryPerception).Error(format, args...) }

func ResolverDebug(format string, args ...interface{}) { Get(CategoryResolver).Debug(format, args...) }

func Decision(format string, args ...interface{})      { Get(CategoryDecision).Info(format, args...) }
func DecisionDebug(format string, args ...interface{}) { Get(CategoryDecision).Debug(format, args...) }

func Catalog(format string, args ...interface{})      { Get(CategoryCatalog).Info(format, args...) }
func CatalogDebug(format string, args ...interface{}) { Get(CategoryCatalog).Debug(format, args...) }
func CatalogWarn(format string, args ...interface{})  { Get(CategoryCatalog).Warn(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

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
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// StderrIsTerminal reports whether stderr is attached to a terminal.
func StderrIsTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
