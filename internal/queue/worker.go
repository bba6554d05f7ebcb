package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

// ErrRedisUnavailable is reported with error events raised by the broker
// health check.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Handler processes one job and returns its result.
type Handler func(ctx context.Context, job *Job) (any, error)

// ProgressStore persists job progress so it survives the worker process.
type ProgressStore interface {
	SetProgress(ctx context.Context, queue, jobID string, progress int) error
}

type server interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

type Options struct {
	Name            string // human readable, used in logs and health summaries
	Queue           string
	Concurrency     int
	LockDuration    time.Duration // a job running longer than this is reported stalled
	ShutdownTimeout time.Duration // grace period for in-flight jobs on Close
	Progress        ProgressStore
	Log             *slog.Logger
}

// Worker consumes one named queue with bounded concurrency and emits
// lifecycle events to registered listeners.
type Worker struct {
	opts     Options
	log      *slog.Logger
	srv      server
	handlers map[string]Handler

	mu        sync.RWMutex
	listeners map[EventType][]Listener
	connected bool

	closeOnce sync.Once
	closed    chan struct{}
}

func NewWorker(redis asynq.RedisConnOpt, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	w := &Worker{
		opts:      opts,
		log:       opts.Log.With("worker", opts.Name, "queue", opts.Queue),
		handlers:  make(map[string]Handler),
		listeners: make(map[EventType][]Listener),
		closed:    make(chan struct{}),
	}
	w.srv = asynq.NewServer(redis, asynq.Config{
		Concurrency:     opts.Concurrency,
		Queues:          map[string]int{opts.Queue: 1},
		ShutdownTimeout: opts.ShutdownTimeout,
		Logger:          newAsynqLogger(w.log, w.reportError),
		LogLevel:        asynq.WarnLevel,
		HealthCheckFunc: w.healthCheck,
		RetryDelayFunc:  retryDelay,
	})
	return w
}

func (w *Worker) Name() string  { return w.opts.Name }
func (w *Worker) Queue() string { return w.opts.Queue }

// Handle registers h for taskType. It must be called before Start.
func (w *Worker) Handle(taskType string, h Handler) {
	w.handlers[taskType] = h
}

// On registers a listener for an event type.
func (w *Worker) On(t EventType, l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners[t] = append(w.listeners[t], l)
}

// Start begins pulling jobs. It returns once the server is running.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	for taskType := range w.handlers {
		mux.HandleFunc(taskType, w.ProcessTask)
	}
	if err := w.srv.Start(mux); err != nil {
		return fmt.Errorf("start worker %s: %w", w.opts.Name, err)
	}

	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()

	w.log.Info("worker ready", "concurrency", w.opts.Concurrency)
	w.emit(Event{Type: EventReady})
	return nil
}

// Close stops fetching new jobs and waits for in-flight jobs up to the
// shutdown timeout. Safe to call more than once.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.srv.Shutdown()
		close(w.closed)
	})
	return nil
}

// Done is closed once Close has returned.
func (w *Worker) Done() <-chan struct{} { return w.closed }

// ProcessTask is the asynq handler for every task type of the queue.
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) (err error) {
	h, ok := w.handlers[task.Type()]
	if !ok {
		return fmt.Errorf("%w: no handler for task type %q", asynq.SkipRetry, task.Type())
	}

	job, err := w.newJob(ctx, task)
	if err != nil {
		w.log.Error("invalid task envelope", "type", task.Type(), "error", err)
		w.emit(Event{Type: EventFailed, Err: err})
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	log := w.log.With("job_id", job.ID, "attempt", job.Retried+1)
	ctx = logger.ToContext(ctx, log)

	w.emit(Event{Type: EventActive, Job: job})

	var stalled *time.Timer
	if w.opts.LockDuration > 0 {
		stalled = time.AfterFunc(w.opts.LockDuration, func() {
			w.emit(Event{Type: EventStalled, Job: job})
		})
	}

	defer func() {
		if stalled != nil {
			stalled.Stop()
		}
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
			log.Error("job panicked", "panic", r)
			w.emit(Event{Type: EventFailed, Job: job, Err: err})
		}
	}()

	result, err := h(ctx, job)
	if err != nil {
		w.emit(Event{Type: EventFailed, Job: job, Err: err})
		if errs.IsFatal(err) {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}

	if rw := task.ResultWriter(); rw != nil && result != nil {
		if raw, mErr := json.Marshal(result); mErr == nil {
			if _, wErr := rw.Write(raw); wErr != nil {
				log.Warn("failed to store job result", "error", wErr)
			}
		}
	}

	w.emit(Event{Type: EventCompleted, Job: job, Result: result})
	return nil
}

func (w *Worker) newJob(ctx context.Context, task *asynq.Task) (*Job, error) {
	var env envelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		return nil, errs.NewFatalError("malformed task payload", err)
	}

	id, _ := asynq.GetTaskID(ctx)
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return &Job{
		ID:          id,
		Queue:       w.opts.Queue,
		Type:        task.Type(),
		Data:        env.Data,
		Timestamp:   env.Timestamp,
		ProcessedOn: time.Now(),
		Retried:     retried,
		MaxRetry:    maxRetry,
		report:      w.reportProgress,
	}, nil
}

func (w *Worker) reportProgress(ctx context.Context, job *Job, progress int) error {
	var err error
	if w.opts.Progress != nil {
		err = w.opts.Progress.SetProgress(ctx, job.Queue, job.ID, progress)
	}
	w.emit(Event{Type: EventProgress, Job: job, Progress: progress})
	return err
}

func (w *Worker) reportError(err error) {
	w.emit(Event{Type: EventError, Err: err})
}

// healthCheck is invoked periodically by asynq with the result of a broker ping.
func (w *Worker) healthCheck(err error) {
	w.mu.Lock()
	was := w.connected
	w.connected = err == nil
	w.mu.Unlock()

	switch {
	case err != nil && was:
		w.log.Error("redis health check failed", "error", err)
		w.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %w", ErrRedisUnavailable, err)})
	case err == nil && !was:
		w.log.Info("redis connection restored")
		w.emit(Event{Type: EventReady})
	}
}

func (w *Worker) emit(e Event) {
	e.Worker = w.opts.Name
	if e.At.IsZero() {
		e.At = time.Now()
	}

	w.mu.RLock()
	ls := append([]Listener(nil), w.listeners[e.Type]...)
	w.mu.RUnlock()

	for _, l := range ls {
		l(e)
	}
}

// retryDelay backs off quickly for lock contention and uses asynq's
// exponential default otherwise.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	var locked *errs.LockedError
	if errors.As(err, &locked) {
		return 30 * time.Second
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}
