package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel converts a config string to a LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CreateLogger creates a logger that writes JSON lines to daily rotating log files in logDir.
// With an empty logDir, or when the directory cannot be created, it logs text to stderr.
func CreateLogger(logLevel LogLevel, logDir string, fileName string) Logger {
	opts := &slog.HandlerOptions{Level: logLevel.slogLevel()}

	if logDir == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	rotatingWriter := newDailyRotatingWriter(logDir, fileName)

	return slog.New(slog.NewJSONHandler(rotatingWriter, opts))
}

// NewWriterLogger logs text lines to w. Used by the CLI subcommands and tests.
func NewWriterLogger(logLevel LogLevel, w io.Writer) Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel.slogLevel()}))
}

// nopLogger is a no-operation logger that implements the Logger interface.
type nopLogger struct{}

// NopLogger is a singleton Logger that performs no operations.
var NopLogger Logger = &nopLogger{}

func (l *nopLogger) Info(msg string, args ...any)  {}
func (l *nopLogger) Warn(msg string, args ...any)  {}
func (l *nopLogger) Error(msg string, args ...any) {}
func (l *nopLogger) Debug(msg string, args ...any) {}
