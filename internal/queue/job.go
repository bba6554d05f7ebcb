package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

var validate = validator.New()

// envelope is the wire format of every task payload.
type envelope struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Job is the read-only view of a task handed to a processor.
type Job struct {
	ID          string
	Queue       string
	Type        string
	Data        json.RawMessage
	Timestamp   time.Time // enqueue time
	ProcessedOn time.Time
	Retried     int
	MaxRetry    int

	mu       sync.Mutex
	progress int
	report   func(ctx context.Context, j *Job, progress int) error
}

// Decode unmarshals the payload into v and validates its struct tags.
// Malformed payloads are fatal.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return errs.NewFatalError(fmt.Sprintf("job %s: invalid payload", j.ID), err)
	}
	if err := validate.Struct(v); err != nil {
		return errs.NewFatalError(fmt.Sprintf("job %s: invalid payload: %v", j.ID, err), err)
	}
	return nil
}

// UpdateProgress records progress for the job and notifies progress listeners.
func (j *Job) UpdateProgress(ctx context.Context, progress int) error {
	j.mu.Lock()
	j.progress = progress
	report := j.report
	j.mu.Unlock()

	if report == nil {
		return nil
	}
	return report(ctx, j, progress)
}

// Progress returns the last reported progress.
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// NewJob builds a job outside a worker, mostly for tests and local runs.
// report may be nil.
func NewJob(id string, data any, report func(ctx context.Context, j *Job, progress int) error) (*Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Job{
		ID:          id,
		Data:        raw,
		Timestamp:   now,
		ProcessedOn: now,
		report:      report,
	}, nil
}
