package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/GregMSThompson/finance-workers/internal/bootstrap"
	"github.com/GregMSThompson/finance-workers/internal/config"
	"github.com/GregMSThompson/finance-workers/internal/handlers"
	"github.com/GregMSThompson/finance-workers/internal/health"
	"github.com/GregMSThompson/finance-workers/internal/response"
	"github.com/GregMSThompson/finance-workers/internal/router"
	"github.com/GregMSThompson/finance-workers/internal/supervisor"
)

func exitOnError(message string, err error, log *slog.Logger, bs *bootstrap.Bootstrap) {
	if err != nil {
		log.Error(message, "error", err)
		if bs != nil {
			_ = bs.Close()
		}
		os.Exit(1)
	}
}

func main() {
	// bootstrap
	cfg := config.New()
	bs, err := bootstrap.Run(cfg)
	exitOnError("bootstrap failed", err, bs.Log, bs)
	defer func() {
		if err := bs.Close(); err != nil {
			bs.Log.Error("failed to release clients", "error", err)
		}
	}()

	// workers
	built, err := buildWorkers(cfg, bs)
	exitOnError("worker setup failed", err, bs.Log, bs)

	supervisors := make([]*supervisor.Supervisor, 0, len(built))
	monitors := make([]health.Monitor, 0, len(built))
	probes := make([]handlers.WorkerHealth, 0, len(built))
	for _, w := range built {
		supervisors = append(supervisors, supervisor.New(bs.Log, w.worker, w.health))
		monitors = append(monitors, w.health)
		probes = append(probes, w.health)
	}

	// health surface
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = response.New(bs.Log)
	deps.Workers = probes
	r := router.NewRouter(deps)

	heartbeat := health.NewHeartbeat(bs.Log, health.DefaultHeartbeatSchedule, func(ctx context.Context) error {
		return bs.Redis.Ping(ctx).Err()
	}, monitors...)

	proc := supervisor.NewProcess(bs.Log, supervisors...)
	proc.Services = []supervisor.Service{
		serveHTTP(bs.Log, cfg.HealthAddr, r),
		heartbeat.Run,
	}

	err = proc.Run(context.Background())
	exitOnError("worker process failed", err, bs.Log, bs)
}
