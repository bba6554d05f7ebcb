package handlers

import (
	"log/slog"

	"github.com/GregMSThompson/finance-workers/internal/health"
	"github.com/GregMSThompson/finance-workers/internal/response"
)

// WorkerHealth is the per-worker verdict the probes report on.
type WorkerHealth interface {
	IsHealthy() bool
	Metrics() health.Metrics
}

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	Workers         []WorkerHealth
}
