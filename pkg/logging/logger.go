package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses a case-insensitive level name. Unknown names yield LevelInfo
// and an error.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// sink is the destination shared by a logger and everything derived from it.
type sink struct {
	mu       sync.Mutex
	out      *log.Logger
	file     *os.File
	minLevel Level
	once     sync.Once
}

// Logger writes component-tagged lines to the run log:
//
//	[2006-01-02 15:04:05.000] [component] [LEVEL] message
//
// Loggers derived with Named share the same destination and level.
type Logger struct {
	runID     string
	component string
	logPath   string
	sink      *sink
}

var (
	runID     string
	runIDOnce sync.Once

	logDir  string
	initMu  sync.Mutex
	initErr error
	inited  bool
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// initLogDirectory resolves and creates the log directory once.
// DECKFEED_LOG_DIR overrides the default ~/.deckfeed/logs.
func initLogDirectory() error {
	initMu.Lock()
	defer initMu.Unlock()
	if inited {
		return initErr
	}
	inited = true

	if logDir == "" {
		if dir := os.Getenv("DECKFEED_LOG_DIR"); dir != "" {
			logDir = dir
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return initErr
			}
			logDir = filepath.Join(homeDir, ".deckfeed", "logs")
		}
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		initErr = fmt.Errorf("failed to create log directory: %w", err)
	}
	return initErr
}

// NewLogger opens the run log (~/.deckfeed/logs/<run-id>-deckfeed.log) for
// component. On failure it returns a logger writing to stderr together with
// the error, so callers may warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-deckfeed.log", id))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		logPath:   logPath,
		sink: &sink{
			out:      log.New(file, "", 0),
			file:     file,
			minLevel: LevelInfo,
		},
	}, nil
}

func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(os.Stderr, component)
	l.Warnf("failed to initialize file logging: %v; falling back to stderr", err)
	return l
}

// NewWriterLogger returns a logger writing to w.
func NewWriterLogger(w io.Writer, component string) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		sink: &sink{
			out:      log.New(w, "", 0),
			minLevel: LevelInfo,
		},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger(io.Discard, "discard")
}

// Named returns a logger for another component sharing l's destination.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		runID:     l.runID,
		component: component,
		logPath:   l.logPath,
		sink:      l.sink,
	}
}

// SetLevel sets the minimum level written by l and every logger sharing its
// destination.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

func (l *Logger) logf(level Level, format string, v ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.minLevel {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.sink.out.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) { l.logf(LevelDebug, format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) { l.logf(LevelInfo, format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) { l.logf(LevelWarn, format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) { l.logf(LevelError, format, v...) }

// Component returns the component tag.
func (l *Logger) Component() string {
	return l.component
}

// RunID returns the id shared by every logger in this process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" for writer-backed loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times and from any logger
// sharing the destination.
func (l *Logger) Close() error {
	var err error
	l.sink.once.Do(func() {
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}

// GetLogDirectory returns the directory where logs are stored.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
