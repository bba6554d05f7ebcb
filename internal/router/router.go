package router

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GregMSThompson/finance-workers/internal/handlers"
	"github.com/GregMSThompson/finance-workers/internal/middleware"
)

// NewRouter serves the worker probes and the Prometheus scrape endpoint.
func NewRouter(deps *handlers.Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewLoggerMiddleware(deps.Log).LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)

	hh := handlers.NewHealthHandlers(deps)

	r.Mount("/", hh.HealthRoutes())
	r.Handle("/metrics", promhttp.Handler())
	return r
}
