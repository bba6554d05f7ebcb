package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestProcessRunShutsDownOnCancel(t *testing.T) {
	w1, w2 := newFakeWorker("a"), newFakeWorker("b")
	h1, h2 := &fakeHealth{}, &fakeHealth{}
	p := NewProcess(testLogger(), New(testLogger(), w1, h1), New(testLogger(), w2, h2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if w1.started != 1 || w2.started != 1 {
		t.Fatalf("expected both workers started, got %d and %d", w1.started, w2.started)
	}
	if w1.closed != 1 || w2.closed != 1 {
		t.Fatalf("expected both workers closed, got %d and %d", w1.closed, w2.closed)
	}
	if h1.stopped != 1 || h2.stopped != 1 {
		t.Fatal("expected health monitors stopped")
	}
}

func TestProcessRunStartFailure(t *testing.T) {
	ok := newFakeWorker("ok")
	bad := newFakeWorker("bad")
	bad.startErr = errors.New("no redis")
	p := NewProcess(testLogger(), New(testLogger(), ok, &fakeHealth{}), New(testLogger(), bad, &fakeHealth{}))

	err := p.Run(context.Background())
	if !errors.Is(err, bad.startErr) {
		t.Fatalf("Run error = %v, want %v", err, bad.startErr)
	}
	if ok.closed != 1 {
		t.Fatal("expected started worker to be closed")
	}
}

func TestProcessRecoversServicePanic(t *testing.T) {
	w := newFakeWorker("a")
	p := NewProcess(testLogger(), New(testLogger(), w, &fakeHealth{}))
	p.Services = []Service{func(ctx context.Context) error { panic("boom") }}

	err := p.Run(context.Background())
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Run error = %v, want ErrPanic", err)
	}
	if w.closed != 1 {
		t.Fatal("expected worker closed after panic")
	}
}

func TestProcessServiceErrorTriggersShutdown(t *testing.T) {
	w := newFakeWorker("a")
	p := NewProcess(testLogger(), New(testLogger(), w, &fakeHealth{}))
	want := errors.New("listen failed")
	p.Services = []Service{func(ctx context.Context) error { return want }}

	if err := p.Run(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Run error = %v, want %v", err, want)
	}
	if w.closed != 1 {
		t.Fatal("expected worker closed")
	}
}

func TestProcessForcesExitWhenShutdownHangs(t *testing.T) {
	h := &fakeHealth{block: make(chan struct{})}
	p := NewProcess(testLogger(), New(testLogger(), newFakeWorker("a"), h))
	p.ForceExitAfter = 10 * time.Millisecond
	p.WorkerGrace = 5 * time.Millisecond

	var code atomic.Int32
	code.Store(-1)
	exited := make(chan struct{})
	p.exit = func(c int) {
		code.Store(int32(c))
		close(exited)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("expected forced exit")
	}
	if code.Load() != 1 {
		t.Fatalf("exit code = %d, want 1", code.Load())
	}

	close(h.block)
	<-done
}
