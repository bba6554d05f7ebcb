package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GregMSThompson/finance-workers/internal/health"
	"github.com/GregMSThompson/finance-workers/internal/response"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

type stubWorker struct {
	name    string
	healthy bool
}

func (s stubWorker) IsHealthy() bool { return s.healthy }

func (s stubWorker) Metrics() health.Metrics {
	return health.Metrics{WorkerName: s.name, IsHealthy: s.healthy, RedisConnected: true}
}

func newTestDeps(workers ...WorkerHealth) *Deps {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	return &Deps{Log: log, ResponseHandler: response.New(log), Workers: workers}
}

type readinessEnvelope struct {
	Success bool              `json:"success"`
	Data    ReadinessResponse `json:"data"`
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name    string
		workers []WorkerHealth
		status  int
		healthy bool
	}{
		{"all healthy", []WorkerHealth{stubWorker{"plaid", true}, stubWorker{"import", true}}, http.StatusOK, true},
		{"one unhealthy", []WorkerHealth{stubWorker{"plaid", true}, stubWorker{"import", false}}, http.StatusServiceUnavailable, false},
		{"no workers", nil, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandlers(newTestDeps(tt.workers...)).HealthRoutes().
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body readinessEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Success != tt.healthy || body.Data.Healthy != tt.healthy || len(body.Data.Workers) != len(tt.workers) {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandlers(newTestDeps(stubWorker{"plaid", false})).HealthRoutes().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness must not depend on worker health, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("probe responses must not be cached")
	}
}
