package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
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
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger *slog.Logger

// InitForCLI initializes the package-level logger used by Debug/Info/Warn/Error.
// It must be called once at process startup, before the first run is scheduled.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: filterLevel.SlogLevel()})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Handler returns the handler backing the default logger, or nil if InitForCLI
// has not been called.
func Handler() slog.Handler {
	if defaultLogger == nil {
		return nil
	}
	return defaultLogger.Handler()
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	var attrs []slog.Attr
	attrs = append(attrs, slog.String("subsystem", subsystem))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// fallbackLog is used by Sink.Drain when the package logger was never
// initialized (e.g. in unit tests that exercise a Sink directly).
func fallbackLog(level LogLevel, subsystem, msg string, t time.Time) {
	fmt.Fprintf(os.Stderr, "%s [%s] %s: %s\n", t.Format(time.RFC3339), level, subsystem, msg)
}
