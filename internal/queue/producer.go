package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultMaxRetry  = 3
	defaultRetention = 24 * time.Hour
)

type EnqueueOptions struct {
	MaxRetry  *int
	Timeout   time.Duration
	Retention time.Duration // how long completed tasks stay inspectable
	TaskID    string
	ProcessIn time.Duration
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Producer enqueues payloads wrapped in the shared envelope.
type Producer struct {
	client enqueuer
	now    func() time.Time
}

func NewProducer(redis asynq.RedisConnOpt) *Producer {
	return &Producer{client: asynq.NewClient(redis), now: time.Now}
}

// Enqueue adds data to queue as a taskType task and returns the task id.
func (p *Producer) Enqueue(ctx context.Context, queueName, taskType string, data any, opts EnqueueOptions) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	payload, err := json.Marshal(envelope{Timestamp: p.now().UTC(), Data: raw})
	if err != nil {
		return "", fmt.Errorf("marshal %s envelope: %w", taskType, err)
	}

	maxRetry := defaultMaxRetry
	if opts.MaxRetry != nil {
		maxRetry = *opts.MaxRetry
	}
	retention := opts.Retention
	if retention == 0 {
		retention = defaultRetention
	}

	taskOpts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(retention),
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	if opts.TaskID != "" {
		taskOpts = append(taskOpts, asynq.TaskID(opts.TaskID))
	}
	if opts.ProcessIn > 0 {
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.ProcessIn))
	}

	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), taskOpts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s on %s: %w", taskType, queueName, err)
	}
	return info.ID, nil
}

func (p *Producer) Close() error {
	return p.client.Close()
}
