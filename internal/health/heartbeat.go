package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GregMSThompson/finance-workers/internal/metrics"
)

const (
	DefaultHeartbeatSchedule = "@every 30s"
	pingTimeout              = 5 * time.Second
)

type Monitor interface {
	IsHealthy() bool
	Metrics() Metrics
	Summary() string
}

// Heartbeat periodically pings the broker and publishes each worker's
// verdict as a gauge.
type Heartbeat struct {
	log      *slog.Logger
	schedule string
	ping     func(ctx context.Context) error
	monitors []Monitor
}

func NewHeartbeat(log *slog.Logger, schedule string, ping func(ctx context.Context) error, monitors ...Monitor) *Heartbeat {
	if schedule == "" {
		schedule = DefaultHeartbeatSchedule
	}
	return &Heartbeat{
		log:      log.With("component", "heartbeat"),
		schedule: schedule,
		ping:     ping,
		monitors: monitors,
	}
}

// Run beats until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(h.schedule, func() { h.Beat(ctx) }); err != nil {
		return fmt.Errorf("schedule heartbeat %q: %w", h.schedule, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (h *Heartbeat) Beat(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	pingErr := h.ping(pingCtx)
	if pingErr != nil {
		h.log.Warn("redis ping failed", "error", pingErr)
	}

	for _, m := range h.monitors {
		healthy := pingErr == nil && m.IsHealthy()
		metrics.SetHealthy(m.Metrics().WorkerName, healthy)
		if !healthy {
			h.log.Warn("worker unhealthy", "summary", m.Summary())
		}
	}
}
