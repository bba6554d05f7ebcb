package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultForceExitAfter = 5 * time.Second
	defaultWorkerGrace    = 1500 * time.Millisecond
)

// ErrPanic wraps a recovered panic from a supervised goroutine.
var ErrPanic = errors.New("worker process panicked")

// Service is an auxiliary long-running component (health server, heartbeat)
// that runs until ctx is cancelled.
type Service func(ctx context.Context) error

// Process runs a set of supervisors until a termination signal, a fatal
// error or a panic, then shuts them all down.
type Process struct {
	Log            *slog.Logger
	Supervisors    []*Supervisor
	Services       []Service
	ForceExitAfter time.Duration
	WorkerGrace    time.Duration

	signals []os.Signal
	exit    func(code int)
}

func NewProcess(log *slog.Logger, supervisors ...*Supervisor) *Process {
	return &Process{
		Log:            log,
		Supervisors:    supervisors,
		ForceExitAfter: defaultForceExitAfter,
		WorkerGrace:    defaultWorkerGrace,
		signals:        []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		exit:           os.Exit,
	}
}

// Run starts every supervisor and blocks until shutdown completes.
func (p *Process) Run(ctx context.Context) (err error) {
	ctx, stop := signal.NotifyContext(ctx, p.signals...)
	defer stop()

	for _, s := range p.Supervisors {
		if err := s.Start(); err != nil {
			p.shutdownAll()
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
	}
	p.Log.Info("worker process started", "workers", len(p.Supervisors))

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range p.Services {
		g.Go(p.guard(func() error { return svc(gctx) }))
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if err != nil {
		p.Log.Error("worker process failed", "error", err)
	} else {
		p.Log.Info("shutdown signal received")
	}

	p.shutdownAll()
	return err
}

// guard converts a panic into an error so the group cancels and the
// process shuts down gracefully.
func (p *Process) guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.Log.Error("panic in worker process", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		return fn()
	}
}

// shutdownAll closes every supervisor concurrently. If they have not all
// returned within ForceExitAfter plus WorkerGrace the process exits with
// status 1.
func (p *Process) shutdownAll() {
	deadline := p.ForceExitAfter + p.WorkerGrace
	force := time.AfterFunc(deadline, func() {
		p.Log.Error("graceful shutdown timed out, forcing exit", "timeout", deadline)
		p.exit(1)
	})
	defer force.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), p.ForceExitAfter)
	defer cancel()

	var g errgroup.Group
	for _, s := range p.Supervisors {
		g.Go(func() error { return s.Shutdown(ctx) })
	}
	if err := g.Wait(); err != nil {
		p.Log.Error("shutdown finished with errors", "error", err)
		return
	}
	p.Log.Info("all workers shut down")
}
