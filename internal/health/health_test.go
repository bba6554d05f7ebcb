package health

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

func testService() *Service {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return newService(slog.New(logger.NewTestHandler(slog.LevelInfo)), "plaid-sync", func() time.Time { return now })
}

func feed(s *Service, completed, failed int) {
	s.Handle(queue.Event{Type: queue.EventReady})
	for i := 0; i < completed; i++ {
		s.Handle(queue.Event{Type: queue.EventCompleted})
	}
	for i := 0; i < failed; i++ {
		s.Handle(queue.Event{Type: queue.EventFailed, Err: errors.New("boom")})
	}
}

func TestUnhealthyBeforeReady(t *testing.T) {
	s := testService()
	if s.IsHealthy() {
		t.Fatal("expected unhealthy before ready")
	}
}

func TestReadyMarksHealthy(t *testing.T) {
	s := testService()
	s.Handle(queue.Event{Type: queue.EventReady})
	if !s.IsHealthy() {
		t.Fatal("expected healthy after ready")
	}
	if !s.Metrics().RedisConnected {
		t.Fatal("expected redis connected after ready")
	}
}

func TestFailureRateThreshold(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		failed    int
		want      bool
	}{
		{name: "half failed", completed: 3, failed: 3, want: false},
		{name: "forty percent failed", completed: 3, failed: 2, want: true},
		{name: "all completed", completed: 5, failed: 0, want: true},
		{name: "mostly failed", completed: 1, failed: 4, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testService()
			feed(s, tt.completed, tt.failed)
			if got := s.IsHealthy(); got != tt.want {
				t.Fatalf("IsHealthy() = %v, want %v (metrics %+v)", got, tt.want, s.Metrics())
			}
		})
	}
}

func TestLockCollisionsDoNotCountAsFailures(t *testing.T) {
	s := testService()
	feed(s, 1, 0)
	for i := 0; i < 5; i++ {
		s.Handle(queue.Event{Type: queue.EventFailed, Err: fmt.Errorf("job: %w", errs.NewLockedError("plaid-item:pi-1"))})
	}
	if got := s.Metrics().TotalJobsFailed; got != 0 {
		t.Fatalf("TotalJobsFailed = %d, want 0", got)
	}
	if !s.IsHealthy() {
		t.Fatal("lock collisions must not fail readiness")
	}
}

func TestErrorEventMarksUnhealthy(t *testing.T) {
	s := testService()
	feed(s, 5, 0)
	s.Handle(queue.Event{Type: queue.EventError, Err: errors.New("connection lost")})
	if s.IsHealthy() {
		t.Fatal("expected unhealthy after error event")
	}

	s.Handle(queue.Event{Type: queue.EventCompleted})
	if !s.IsHealthy() {
		t.Fatal("expected completed event to restore health")
	}
}

func TestStalledDoesNotChangeState(t *testing.T) {
	s := testService()
	feed(s, 1, 0)
	before := s.Metrics()
	s.Handle(queue.Event{Type: queue.EventStalled})
	after := s.Metrics()
	if before.IsHealthy != after.IsHealthy || before.TotalJobsFailed != after.TotalJobsFailed || before.TotalJobsProcessed != after.TotalJobsProcessed {
		t.Fatalf("stalled changed metrics: before %+v after %+v", before, after)
	}
}

func TestCompletedRecordsLastJob(t *testing.T) {
	s := testService()
	s.Handle(queue.Event{Type: queue.EventCompleted})
	m := s.Metrics()
	if m.LastJobProcessed == nil || m.TotalJobsProcessed != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestSummary(t *testing.T) {
	s := testService()
	feed(s, 3, 2)
	summary := s.Summary()
	for _, want := range []string{"plaid-sync", "healthy", "processed 3", "failed 2", "40.0%"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary %q missing %q", summary, want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	s := newService(log, "csv-import", time.Now)

	s.Stop()
	s.Stop()

	if n := strings.Count(buf.String(), "health monitoring stopped"); n != 1 {
		t.Fatalf("expected one stop log, got %d", n)
	}
}

type fakeSource struct {
	registered map[queue.EventType]int
}

func (f *fakeSource) On(t queue.EventType, l queue.Listener) {
	f.registered[t]++
}

func TestWatchRegistersLifecycleEvents(t *testing.T) {
	src := &fakeSource{registered: map[queue.EventType]int{}}
	testService().Watch(src)
	for _, typ := range []queue.EventType{queue.EventReady, queue.EventCompleted, queue.EventFailed, queue.EventError, queue.EventStalled} {
		if src.registered[typ] != 1 {
			t.Fatalf("expected listener for %s", typ)
		}
	}
}
