// Package health tracks the lifecycle of a single queue worker and turns it
// into a health verdict.
package health

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/queue"
)

// failureThreshold is the failure rate at or above which a worker is unhealthy.
const failureThreshold = 0.5

type Metrics struct {
	StartTime          time.Time  `json:"startTime"`
	LastJobProcessed   *time.Time `json:"lastJobProcessed,omitempty"`
	TotalJobsProcessed int        `json:"totalJobsProcessed"`
	TotalJobsFailed    int        `json:"totalJobsFailed"`
	IsHealthy          bool       `json:"isHealthy"`
	RedisConnected     bool       `json:"redisConnected"`
	WorkerName         string     `json:"workerName"`
}

// FailureRate is failed/(failed+processed), zero before any job finished.
func (m Metrics) FailureRate() float64 {
	total := m.TotalJobsFailed + m.TotalJobsProcessed
	if total == 0 {
		return 0
	}
	return float64(m.TotalJobsFailed) / float64(total)
}

// EventSource is the part of a worker the service listens to.
type EventSource interface {
	On(t queue.EventType, l queue.Listener)
}

type Service struct {
	log      *slog.Logger
	clockNow func() time.Time

	mu      sync.Mutex
	metrics Metrics
	stopped bool
}

func NewService(log *slog.Logger, workerName string) *Service {
	return newService(log, workerName, time.Now)
}

func newService(log *slog.Logger, workerName string, clockNow func() time.Time) *Service {
	return &Service{
		log:      log.With("component", "health", "worker", workerName),
		clockNow: clockNow,
		metrics: Metrics{
			StartTime:  clockNow(),
			WorkerName: workerName,
		},
	}
}

// Watch subscribes the service to a worker's lifecycle events.
func (s *Service) Watch(src EventSource) {
	src.On(queue.EventReady, s.Handle)
	src.On(queue.EventCompleted, s.Handle)
	src.On(queue.EventFailed, s.Handle)
	src.On(queue.EventError, s.Handle)
	src.On(queue.EventStalled, s.Handle)
}

// Handle applies a lifecycle event to the metrics.
func (s *Service) Handle(e queue.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case queue.EventReady:
		s.metrics.RedisConnected = true
		s.metrics.IsHealthy = true
		s.log.Info("worker is ready")

	case queue.EventCompleted:
		now := s.clockNow()
		s.metrics.LastJobProcessed = &now
		s.metrics.TotalJobsProcessed++
		s.metrics.IsHealthy = true

	case queue.EventFailed:
		var locked *errs.LockedError
		if errors.As(e.Err, &locked) {
			s.log.Debug("job deferred, resource locked", "resource", locked.Resource)
			return
		}
		s.metrics.TotalJobsFailed++
		rate := s.metrics.FailureRate()
		if rate > failureThreshold {
			s.metrics.IsHealthy = false
			s.log.Warn("high failure rate detected", "failure_rate", fmt.Sprintf("%.2f%%", rate*100))
		}

	case queue.EventError:
		s.metrics.IsHealthy = false
		s.log.Error("worker error", "error", e.Err)

	case queue.EventStalled:
		jobID := ""
		if e.Job != nil {
			jobID = e.Job.ID
		}
		s.log.Warn("job stalled", "job_id", jobID)
	}
}

// Metrics returns a snapshot.
func (s *Service) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	if m.LastJobProcessed != nil {
		t := *m.LastJobProcessed
		m.LastJobProcessed = &t
	}
	return m
}

// IsHealthy requires the last event verdict, a live broker connection and a
// failure rate under the threshold.
func (s *Service) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.IsHealthy && s.metrics.RedisConnected && s.metrics.FailureRate() < failureThreshold
}

func (s *Service) Summary() string {
	m := s.Metrics()
	healthy := s.IsHealthy()

	last := "never"
	if m.LastJobProcessed != nil {
		last = m.LastJobProcessed.UTC().Format(time.RFC3339)
	}
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}

	return fmt.Sprintf(
		"worker %s: %s, uptime %s, processed %d, failed %d (%.1f%% failure rate), last job %s, redis connected %t",
		m.WorkerName,
		status,
		s.clockNow().Sub(m.StartTime).Round(time.Second),
		m.TotalJobsProcessed,
		m.TotalJobsFailed,
		m.FailureRate()*100,
		last,
		m.RedisConnected,
	)
}

// Stop logs the final summary once. It does not close the worker.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.log.Info("health monitoring stopped", "summary", s.Summary())
}
