// Package supervisor owns worker start-up and shutdown for a worker process.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/GregMSThompson/finance-workers/internal/queue"
)

type Worker interface {
	Name() string
	On(t queue.EventType, l queue.Listener)
	Start() error
	Close() error
}

type HealthMonitor interface {
	Summary() string
	Stop()
}

// Supervisor watches one worker. Its shutting-down state is private to the
// instance so several supervisors can share a process.
type Supervisor struct {
	worker Worker
	health HealthMonitor
	log    *slog.Logger

	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(log *slog.Logger, worker Worker, health HealthMonitor) *Supervisor {
	s := &Supervisor{
		worker: worker,
		health: health,
		log:    log.With("worker", worker.Name()),
	}
	worker.On(queue.EventCompleted, s.onCompleted)
	worker.On(queue.EventFailed, s.onFailed)
	worker.On(queue.EventError, s.onError)
	worker.On(queue.EventStalled, s.onStalled)
	return s
}

func (s *Supervisor) Name() string { return s.worker.Name() }

func (s *Supervisor) Start() error {
	s.log.Info("starting worker")
	return s.worker.Start()
}

func (s *Supervisor) ShuttingDown() bool { return s.shuttingDown.Load() }

// Shutdown closes the worker, waiting for in-flight jobs up to the worker's
// grace period, then stops health monitoring. Later calls return the first
// result.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shuttingDown.Store(true)
		s.log.Info("starting graceful shutdown")

		done := make(chan error, 1)
		go func() { done <- s.worker.Close() }()

		select {
		case err := <-done:
			if err != nil {
				s.log.Error("error closing worker", "error", err)
				s.shutdownErr = err
			} else {
				s.log.Info("worker closed")
			}
		case <-ctx.Done():
			s.log.Error("worker close did not finish in time", "error", ctx.Err())
			s.shutdownErr = ctx.Err()
		}

		if s.health != nil {
			s.log.Info("final health summary", "summary", s.health.Summary())
			s.health.Stop()
		}
	})
	return s.shutdownErr
}

func (s *Supervisor) onCompleted(e queue.Event) {
	if s.ShuttingDown() {
		return
	}
	s.log.Info("job completed", "job_id", jobID(e))
}

func (s *Supervisor) onFailed(e queue.Event) {
	if s.ShuttingDown() {
		return
	}
	s.log.Error("job failed", "job_id", jobID(e), "error", e.Err)
}

func (s *Supervisor) onError(e queue.Event) {
	if s.ShuttingDown() {
		return
	}
	s.log.Error("worker error", "error", e.Err)
}

func (s *Supervisor) onStalled(e queue.Event) {
	if s.ShuttingDown() {
		return
	}
	s.log.Warn("job stalled", "job_id", jobID(e))
}

func jobID(e queue.Event) string {
	if e.Job == nil {
		return ""
	}
	return e.Job.ID
}
