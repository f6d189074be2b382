package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

func Init(env string) {
	Configure(env, "", "")
}

// Configure sets the process logger. Production defaults to JSON at info,
// everything else to text at debug; a non-empty level or format overrides.
func Configure(env, level, format string) {
	fallback := slog.LevelDebug
	if env == "production" {
		fallback = slog.LevelInfo
	}
	if format == "" {
		format = "text"
		if env == "production" {
			format = "json"
		}
	}

	defaultLogger = slog.New(ContextHandler{NewHandler(os.Stdout, format, parseLevel(level, fallback))})
	slog.SetDefault(defaultLogger)
}

func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}

// L is shorthand for LoggerWrapper.
func L() *slog.Logger {
	return LoggerWrapper()
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
