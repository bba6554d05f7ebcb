package main

import (
	"context"
	"fmt"

	"github.com/GregMSThompson/finance-workers/internal/bootstrap"
	plaidclient "github.com/GregMSThompson/finance-workers/internal/client/plaid"
	"github.com/GregMSThompson/finance-workers/internal/config"
	"github.com/GregMSThompson/finance-workers/internal/csvimport"
	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/health"
	"github.com/GregMSThompson/finance-workers/internal/metrics"
	"github.com/GregMSThompson/finance-workers/internal/pubsub"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/internal/services"
)

type builtWorker struct {
	worker *queue.Worker
	health *health.Service
}

type workerSpec struct {
	name        string
	taskType    string
	concurrency int
	handler     func() (queue.Handler, error)
	watch       func(w *queue.Worker)
}

// buildWorkers creates one worker per queue listed in WORKERS.
func buildWorkers(cfg *config.Config, bs *bootstrap.Bootstrap) ([]builtWorker, error) {
	specs := workerSpecs(cfg, bs)
	progress := queue.NewRedisProgressStore(bs.Redis)

	out := make([]builtWorker, 0, len(cfg.Workers))
	for _, queueName := range cfg.Workers {
		spec, ok := specs[queueName]
		if !ok {
			return nil, fmt.Errorf("unknown worker queue %q", queueName)
		}
		handler, err := spec.handler()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.name, err)
		}

		w := queue.NewWorker(bs.RedisOpt, queue.Options{
			Name:            spec.name,
			Queue:           queueName,
			Concurrency:     spec.concurrency,
			LockDuration:    cfg.JobLockDuration,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Progress:        progress,
			Log:             bs.Log,
		})
		w.Handle(spec.taskType, handler)

		hs := health.NewService(bs.Log, spec.name)
		hs.Watch(w)
		metrics.Watch(w)
		if spec.watch != nil {
			spec.watch(w)
		}
		out = append(out, builtWorker{worker: w, health: hs})
	}
	return out, nil
}

func workerSpecs(cfg *config.Config, bs *bootstrap.Bootstrap) map[string]workerSpec {
	return map[string]workerSpec{
		dto.QueuePlaidSync: {
			name:        "Plaid Sync Worker",
			taskType:    dto.TaskPlaidSync,
			concurrency: cfg.WorkerConcurrency,
			handler: func() (queue.Handler, error) {
				deps := services.PlaidSyncDeps{
					Items:        bs.Stores.Items,
					Accounts:     bs.Stores.Accounts,
					Transactions: bs.Stores.Transactions,
					Plaid:        bs.Plaid,
					Classifier:   plaidclient.ErrorClassifier{},
					Locker:       queue.NewRedisLocker(bs.Redis, cfg.JobLockDuration),
				}
				if bs.Tokens != nil {
					deps.Tokens = bs.Tokens
				}
				if bs.Secrets != nil {
					deps.Secrets = bs.Secrets
				}
				return services.NewPlaidSyncService(deps).Process, nil
			},
		},
		dto.QueueImportTransactions: {
			name:        "Import Transactions Worker",
			taskType:    dto.TaskImportTransactions,
			concurrency: cfg.WorkerConcurrency,
			handler: func() (queue.Handler, error) {
				return services.NewImportService(services.ImportDeps{
					Storage: bs.CSVStorage,
					NewTransformer: func(opts csvimport.Options) services.RowTransformer {
						return csvimport.NewTransformer(bs.Stores.Accounts, bs.Stores.Transactions, opts)
					},
				}).Process, nil
			},
			watch: func(w *queue.Worker) {
				pubsub.NewPublisher(bs.Redis, bs.Log).Watch(w)
			},
		},
		dto.QueueCalendarSync: {
			name:        "Google Calendar Sync Worker",
			taskType:    dto.TaskCalendarSync,
			concurrency: cfg.WorkerConcurrency,
			handler: func() (queue.Handler, error) {
				factory := func(ctx context.Context, userID string, tokens dto.GoogleTokens) (services.CalendarSyncer, error) {
					client, err := bs.Calendar.Client(ctx, tokens)
					if err != nil {
						return nil, err
					}
					return services.NewCalendarSyncer(client, bs.Stores.Events, userID), nil
				}
				return services.NewCalendarService(factory).Process, nil
			},
		},
		dto.QueueSmartInput: {
			name:        "Smart Input Worker",
			taskType:    dto.TaskSmartInput,
			concurrency: cfg.SmartInputConcurrency,
			handler: func() (queue.Handler, error) {
				if bs.AI == nil {
					return nil, fmt.Errorf("smart input needs GOOGLE_API_KEY or PROJECT_ID")
				}
				return services.NewSmartInputService(bs.AI, bs.AttachmentStorage).Process, nil
			},
		},
	}
}
