package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GregMSThompson/finance-workers/internal/queue"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finance_worker_jobs_total",
		Help: "Jobs finished by a worker, by outcome",
	}, []string{"worker", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finance_worker_job_duration_seconds",
		Help:    "Time from job pickup to completion or failure",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"worker"})

	jobsStalled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finance_worker_jobs_stalled_total",
		Help: "Jobs that ran past the lock duration",
	}, []string{"worker"})

	workerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finance_worker_errors_total",
		Help: "Worker level errors, not job failures",
	}, []string{"worker"})

	workerHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finance_worker_healthy",
		Help: "1 when the worker health verdict is healthy",
	}, []string{"worker"})

	plaidModifiedFallback = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plaid_modified_fallback_total",
		Help: "Modified Plaid transactions inserted because they were never seen as added",
	})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csv_import_rows_total",
		Help: "CSV import rows by outcome",
	}, []string{"action"})
)

type eventSource interface {
	Name() string
	On(t queue.EventType, l queue.Listener)
}

// Watch records job outcomes of a worker.
func Watch(w eventSource) {
	name := w.Name()
	w.On(queue.EventCompleted, func(e queue.Event) {
		jobsTotal.WithLabelValues(name, "completed").Inc()
		observeDuration(name, e)
	})
	w.On(queue.EventFailed, func(e queue.Event) {
		jobsTotal.WithLabelValues(name, "failed").Inc()
		observeDuration(name, e)
	})
	w.On(queue.EventStalled, func(queue.Event) {
		jobsStalled.WithLabelValues(name).Inc()
	})
	w.On(queue.EventError, func(queue.Event) {
		workerErrors.WithLabelValues(name).Inc()
	})
}

func observeDuration(worker string, e queue.Event) {
	if e.Job == nil || e.Job.ProcessedOn.IsZero() {
		return
	}
	jobDuration.WithLabelValues(worker).Observe(time.Since(e.Job.ProcessedOn).Seconds())
}

func SetHealthy(worker string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	workerHealthy.WithLabelValues(worker).Set(v)
}

// PlaidModifiedFallback counts modified transactions that had to be inserted.
func PlaidModifiedFallback() { plaidModifiedFallback.Inc() }

func ImportRow(action string) { importRows.WithLabelValues(action).Inc() }
