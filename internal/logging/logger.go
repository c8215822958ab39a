// Package logging provides categorized file-based debug logging. Each
// subsystem writes to its own file under <data-dir>/logs/. File logging is
// off by default and enabled through the logging section of the config; zap
// remains the primary structured logger, these files are a debugging aid.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies one subsystem's log stream.
type Category string

const (
	CategoryPipeline  Category = "pipeline"  // orchestrator state transitions
	CategorySituation Category = "situation" // situation building
	CategoryActs      Category = "acts"      // dialogue act selection
	CategoryPlanner   Category = "planner"   // message planning
	CategoryRisk      Category = "risk"      // risk scoring and approval
	CategorySelector  Category = "selector"  // construction selection
	CategoryCritique  Category = "critique"  // self-critique and revision
	CategoryEpisode   Category = "episode"   // episode logging and storage
	CategoryFeedback  Category = "feedback"  // feedback aggregation
	CategoryLearning  Category = "learning"  // similarity / pattern evaluation
	CategoryStore     Category = "store"     // sqlite operations
	CategoryGenerate  Category = "generate"  // external generator fallback
)

// Log levels.
const (
	LevelError = 0
	LevelWarn  = 1
	LevelInfo  = 2
	LevelDebug = 3
)

// Options controls the file logger. Mirrors config.LoggingConfig to avoid a
// config import cycle.
type Options struct {
	Enabled    bool
	Level      int
	Categories []string // empty means all
}

// Logger writes to one category's file. A Logger with a nil inner logger is
// a no-op.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	logsDir string
	opts    Options
)

// Initialize sets up the logs directory. Call once at startup; a disabled
// config makes every logger a silent no-op.
func Initialize(dataDir string, o Options) error {
	mu.Lock()
	defer mu.Unlock()

	opts = o
	if !o.Enabled {
		logsDir = ""
		return nil
	}
	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}
	return nil
}

func categoryEnabled(c Category) bool {
	if !opts.Enabled {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	for _, name := range opts.Categories {
		if name == string(c) {
			return true
		}
	}
	return false
}

// Get returns (or creates) the logger for a category. Returns a no-op logger
// when file logging is disabled or the category is filtered out.
func Get(category Category) *Logger {
	mu.RLock()
	if !categoryEnabled(category) || logsDir == "" {
		mu.RUnlock()
		return &Logger{category: category}
	}
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

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) { l.printf(LevelDebug, "DEBUG", format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.printf(LevelInfo, "INFO", format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.printf(LevelWarn, "WARN", format, args...) }

// Error logs at error level; always written when the logger is live.
func (l *Logger) Error(format string, args ...any) { l.printf(LevelError, "ERROR", format, args...) }

func (l *Logger) printf(level int, tag, format string, args ...any) {
	if l.logger == nil || level > opts.Level {
		return
	}
	l.logger.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation in the given category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}
