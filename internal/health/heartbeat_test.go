package health

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

func healthyGauge(t *testing.T, worker string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "finance_worker_healthy" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "worker" && l.GetValue() == worker {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no gauge for worker %q", worker)
	return 0
}

func TestHeartbeatPublishesVerdicts(t *testing.T) {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	ready := newService(log, "hb-ready", time.Now)
	feed(ready, 1, 0)
	idle := newService(log, "hb-idle", time.Now)

	pings := 0
	hb := NewHeartbeat(log, "", func(context.Context) error { pings++; return nil }, ready, idle)
	hb.Beat(context.Background())

	if pings != 1 {
		t.Fatalf("pings = %d", pings)
	}
	if healthyGauge(t, "hb-ready") != 1 || healthyGauge(t, "hb-idle") != 0 {
		t.Fatal("gauges do not match worker verdicts")
	}
}

func TestHeartbeatPingFailureMarksUnhealthy(t *testing.T) {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	ready := newService(log, "hb-ping", time.Now)
	feed(ready, 1, 0)

	hb := NewHeartbeat(log, "", func(context.Context) error { return errors.New("connection refused") }, ready)
	hb.Beat(context.Background())

	if healthyGauge(t, "hb-ping") != 0 {
		t.Fatal("a failed ping must mark workers unhealthy")
	}
}

func TestHeartbeatRunStopsWithContext(t *testing.T) {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	hb := NewHeartbeat(log, "@every 1h", func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func TestHeartbeatRejectsBadSchedule(t *testing.T) {
	log := slog.New(logger.NewTestHandler(slog.LevelInfo))
	hb := NewHeartbeat(log, "not a schedule", func(context.Context) error { return nil })
	if err := hb.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
