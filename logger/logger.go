package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent // no output at all
)

var levelNames = map[Level]string{
	LevelDebug:  "DEBUG",
	LevelInfo:   "INFO",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
	LevelSilent: "SILENT",
}

// ParseLevel parses a log level name. Unknown names default to info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent", "none":
		return LevelSilent, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the canonical name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Logger is an explicit leveled logging sink. Components receive a Logger
// (usually narrowed with WithModule) instead of reaching for any process-wide
// state, so tests and segment workers can redirect or mute output.
type Logger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	module string
}

// New creates a Logger writing to out. A nil out falls back to stderr.
func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{mu: &sync.Mutex{}, out: out, level: level}
}

// Discard returns a logger that produces no output. Handy default for tests.
func Discard() *Logger {
	return New(io.Discard, LevelSilent)
}

// WithModule returns a logger that tags every line with the module name.
// The derived logger shares the parent's writer and lock.
func (l *Logger) WithModule(name string) *Logger {
	return &Logger{mu: l.mu, out: l.out, level: l.level, module: name}
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level || l.level == LevelSilent {
		return
	}
	prefix := fmt.Sprintf("[%s][%s]", time.Now().Format("15:04:05.000"), levelNames[level])
	if l.module != "" {
		prefix += fmt.Sprintf("[%s]", l.module)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Errorf logs an error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}
