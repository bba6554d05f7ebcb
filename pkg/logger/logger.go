package logger

import (
	"log/slog"
	"strings"
)

// New builds the process logger and installs it as the slog default, so
// code without a logger in its context still logs in the same format.
func New(level string, handler func(level slog.Level) slog.Handler) *slog.Logger {
	log := slog.New(handler(ParseLevel(level)))
	slog.SetDefault(log)
	return log
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
