// Package pubsub broadcasts CSV import progress to live listeners.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/queue"
)

const (
	ImportProgressChannel = "import:progress"

	jobStatusPrefix = "import:job:"
	jobStatusTTL    = 24 * time.Hour
	publishTimeout  = 5 * time.Second
)

type sink interface {
	store(ctx context.Context, jobID string, raw []byte) error
}

type redisSink struct {
	rdb redis.UniversalClient
}

// store writes the job status and publishes it in one transaction.
func (s redisSink) store(ctx context.Context, jobID string, raw []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobStatusPrefix+jobID, raw, jobStatusTTL)
	pipe.Publish(ctx, ImportProgressChannel, raw)
	_, err := pipe.Exec(ctx)
	return err
}

// Publisher mirrors import job state into Redis and broadcasts it on the
// progress channel. Delivery is best effort; failures are only logged.
type Publisher struct {
	sink sink
	log  *slog.Logger
}

func NewPublisher(rdb redis.UniversalClient, log *slog.Logger) *Publisher {
	return &Publisher{sink: redisSink{rdb: rdb}, log: log.With("component", "import-progress")}
}

// Watch subscribes the publisher to an import worker.
func (p *Publisher) Watch(w interface {
	On(t queue.EventType, l queue.Listener)
}) {
	w.On(queue.EventProgress, p.onProgress)
	w.On(queue.EventCompleted, p.onCompleted)
	w.On(queue.EventFailed, p.onFailed)
}

// Publish stores ev under the job's status key and sends it on the channel
// as a one-element array.
func (p *Publisher) Publish(ctx context.Context, ev dto.ProgressEvent) error {
	raw, err := json.Marshal([]dto.ProgressEvent{ev})
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	if err := p.sink.store(ctx, ev.JobID, raw); err != nil {
		return fmt.Errorf("publish progress for job %s: %w", ev.JobID, err)
	}
	return nil
}

func (p *Publisher) onProgress(e queue.Event) {
	ev := p.base(e, dto.ProgressProcessing)
	stats := dto.JobStats{Progress: e.Progress}
	if e.Job != nil {
		stats.ProcessingTime = time.Since(e.Job.ProcessedOn).Milliseconds()
	}
	ev.Stats = &stats
	p.send(ev)
}

func (p *Publisher) onCompleted(e queue.Event) {
	ev := p.base(e, dto.ProgressDone)
	switch r := e.Result.(type) {
	case dto.ImportResult:
		ev.Stats = &r.Stats
	case *dto.ImportResult:
		if r != nil {
			ev.Stats = &r.Stats
		}
	}
	p.send(ev)
}

func (p *Publisher) onFailed(e queue.Event) {
	ev := p.base(e, dto.ProgressError)
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	p.send(ev)
}

func (p *Publisher) base(e queue.Event, status dto.ProgressStatus) dto.ProgressEvent {
	ev := dto.ProgressEvent{Status: status}
	if e.Job == nil {
		return ev
	}
	ev.JobID = e.Job.ID

	var payload dto.ImportTransactionsPayload
	if err := json.Unmarshal(e.Job.Data, &payload); err == nil {
		ev.FileName = payload.FileName
		ev.UserID = payload.UserID
	}
	return ev
}

func (p *Publisher) send(ev dto.ProgressEvent) {
	if ev.JobID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Error("failed to publish import progress", "job_id", ev.JobID, "status", ev.Status, "error", err)
	}
}
