package helpers

import (
	"context"
	"log/slog"

	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

// TestCtx returns a context carrying a debug-level test logger, so debug-only
// log arguments are still evaluated under test.
func TestCtx() context.Context {
	return logger.ToContext(context.Background(), slog.New(logger.NewTestHandler(slog.LevelDebug)))
}
