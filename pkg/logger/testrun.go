package logger

import (
	"io"
	"log/slog"
	"os"
)

// NewTestHandler discards output unless TEST_LOG is set, in which case it
// writes text lines to stderr.
func NewTestHandler(level slog.Level) slog.Handler {
	var w io.Writer = io.Discard
	if os.Getenv("TEST_LOG") != "" {
		w = os.Stderr
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
