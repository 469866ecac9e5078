package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 500

// Config is the [logging] section of the application config.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu           sync.RWMutex
	config       Config
	initialized  bool
	globalLevel  = &slog.LevelVar{}
	moduleLevels = make(map[string]*slog.LevelVar)
	loggers      = make(map[string]*slog.Logger)
	history      = NewHistory(historySize)
)

// Initialize applies cfg to the default logger and every module logger
// created so far.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	config = cfg
	initialized = true
	globalLevel.Set(levelOr(cfg.Level, slog.LevelInfo))

	for module, lv := range moduleLevels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}
	slog.SetDefault(slog.New(newHandler(cfg.Format, globalLevel)))
}

// GetLogger returns the logger of a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	logger, ok := loggers[module]
	mu.RUnlock()
	if ok {
		return logger
	}

	mu.Lock()
	defer mu.Unlock()
	if logger, ok := loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module))
	format := "text"
	if initialized {
		format = config.Format
	}
	logger = slog.New(newHandler(format, lv)).With("module", module)
	moduleLevels[module] = lv
	loggers[module] = logger
	return logger
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the global level.
func SetLevel(module, level string) error {
	l, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	mu.Lock()
	defer mu.Unlock()
	if module == "" {
		globalLevel.Set(l)
		return nil
	}
	lv, ok := moduleLevels[module]
	if !ok {
		lv = &slog.LevelVar{}
		moduleLevels[module] = lv
	}
	lv.Set(l)
	if config.Modules == nil {
		config.Modules = make(map[string]string)
	}
	config.Modules[module] = level
	return nil
}

// Recent returns the buffered log history, oldest first.
func Recent() []Entry {
	return history.All()
}

// moduleLevel resolves the level of a module from the config. Callers hold mu.
func moduleLevel(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	if s, ok := config.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return levelOr(config.Level, slog.LevelInfo)
}

// newHandler builds the output chain: stdout when something is attached,
// the journal when it runs, and always the history ring.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if stdoutAttached() {
		handlers = append(handlers, stdout)
	}
	if JournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewHistoryHandler(history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewFanout(handlers...)
}

// stdoutAttached reports whether stdout goes to a terminal, pipe, socket
// or file rather than /dev/null.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(level); ok {
		return l
	}
	return fallback
}

// ParseLevel parses a level name as used in the config file.
func ParseLevel(level string) (slog.Level, error) {
	l, ok := parseLevel(level)
	if !ok {
		return l, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}
