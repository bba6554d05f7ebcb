package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/finance-workers/internal/health"
)

type healthHandlers struct {
	*Deps
}

func NewHealthHandlers(deps *Deps) *healthHandlers {
	return &healthHandlers{Deps: deps}
}

type ReadinessResponse struct {
	Healthy bool             `json:"healthy"`
	Workers []health.Metrics `json:"workers"`
}

func (h *healthHandlers) HealthRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
	return r
}

// Liveness only reports that the process is serving.
func (h *healthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	h.ResponseHandler.WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness is 200 only when every worker in this process is healthy.
func (h *healthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Healthy: true, Workers: make([]health.Metrics, 0, len(h.Workers))}
	for _, wk := range h.Workers {
		resp.Workers = append(resp.Workers, wk.Metrics())
		if !wk.IsHealthy() {
			resp.Healthy = false
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.ResponseHandler.WriteSuccess(w, status, resp)
}
