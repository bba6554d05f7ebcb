package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/blob"
	"github.com/GregMSThompson/finance-workers/internal/csvimport"
	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/metrics"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

const progressPushInterval = time.Second

// RowTransformer parses a CSV document and reports one result per row.
type RowTransformer interface {
	Transform(ctx context.Context, uid string, content []byte, yield func(csvimport.Result) error) error
}

type ImportDeps struct {
	Storage blob.Backend
	// NewTransformer builds the row pipeline for one job's options.
	NewTransformer func(opts csvimport.Options) RowTransformer
}

type importService struct {
	ImportDeps
	clockNow func() time.Time
}

func NewImportService(deps ImportDeps) *importService {
	return &importService{ImportDeps: deps, clockNow: time.Now}
}

// Process is the queue handler for finance:import-transactions jobs.
func (s *importService) Process(ctx context.Context, job *queue.Job) (any, error) {
	var payload dto.ImportTransactionsPayload
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}
	return s.Import(ctx, job.ID, payload, job)
}

// Import downloads the CSV referenced by p, runs it through the row pipeline
// and returns the accumulated stats. Progress stays below 100 until every row
// has been seen.
func (s *importService) Import(ctx context.Context, jobID string, p dto.ImportTransactionsPayload, progress progressReporter) (dto.ImportResult, error) {
	log, ctx := logger.With(ctx, "job_id", jobID, "user_id", p.UserID, "file_name", p.FileName)
	start := s.clockNow()
	log.Info("csv import started")

	run := dto.ImportTransactionsJob{
		JobID:     jobID,
		UserID:    p.UserID,
		FileName:  p.FileName,
		AccountID: p.AccountID,
		Options:   importOptions(p),
		StartTime: start,
	}
	run.Stats.Errors = []string{}

	fail := func(err error) (dto.ImportResult, error) {
		log.Error("csv import failed",
			"error", err,
			"csv_file_path", p.CSVFilePath,
			"processed", run.Stats.Total,
			"fatal", errs.IsFatal(err),
		)
		return dto.ImportResult{Success: false, Stats: run.Stats}, err
	}

	if err := progress.UpdateProgress(ctx, 0); err != nil {
		log.Warn("failed to report progress", "error", err)
	}

	if p.CSVFilePath == "" {
		return fail(errs.NewFatalError(fmt.Sprintf("csv file path not found in job %s", jobID), nil))
	}

	content, err := blob.Download(ctx, s.Storage, p.CSVFilePath)
	if err != nil {
		return fail(err)
	}
	if len(content) == 0 {
		return fail(errs.NewFatalError("downloaded csv file is empty", nil))
	}
	run.CSVContent = content

	estimate := estimateRows(content)
	lastPush := start
	lastReported := -1

	opts := csvimport.DefaultOptions()
	opts.DeduplicateThreshold = run.Options.DeduplicateThreshold
	opts.BatchSize = run.Options.BatchSize
	opts.BatchDelay = run.Options.BatchDelay

	err = s.NewTransformer(opts).Transform(ctx, p.UserID, run.CSVContent, func(r csvimport.Result) error {
		count(&run.Stats, r)
		metrics.ImportRow(string(r.Action))

		run.Stats.Progress = min(99, int(math.Round(float64(run.Stats.Total)/float64(estimate)*100)))

		now := s.clockNow()
		if now.Sub(lastPush) >= progressPushInterval && run.Stats.Progress != lastReported {
			if err := progress.UpdateProgress(ctx, run.Stats.Progress); err != nil {
				log.Warn("failed to report progress", "error", err)
			}
			lastReported = run.Stats.Progress
			lastPush = now
		}
		return nil
	})
	run.CSVContent = nil
	if err != nil {
		return fail(err)
	}

	run.Stats.Progress = 100
	run.Stats.ProcessingTime = s.clockNow().Sub(start).Milliseconds()
	if err := progress.UpdateProgress(ctx, 100); err != nil {
		log.Warn("failed to report progress", "error", err)
	}

	log.Info("csv import completed",
		"total", run.Stats.Total,
		"created", run.Stats.Created,
		"updated", run.Stats.Updated,
		"skipped", run.Stats.Skipped,
		"merged", run.Stats.Merged,
		"invalid", run.Stats.Invalid,
		"processing_time_ms", run.Stats.ProcessingTime,
	)
	return dto.ImportResult{Success: true, Stats: run.Stats}, nil
}

func count(stats *dto.JobStats, r csvimport.Result) {
	stats.Total++
	switch r.Action {
	case csvimport.ActionCreated:
		stats.Created++
	case csvimport.ActionUpdated:
		stats.Updated++
	case csvimport.ActionSkipped:
		stats.Skipped++
	case csvimport.ActionMerged:
		stats.Merged++
	case csvimport.ActionInvalid:
		stats.Invalid++
	}
	if r.Err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", r.Line, r.Err))
	}
}

// estimateRows counts data lines, excluding the header when there is one.
// A trailing newline counts as a line, so the estimate can run high.
func estimateRows(content []byte) int {
	lines := bytes.Count(content, []byte("\n")) + 1
	if bytes.Contains(content, []byte("\n")) {
		lines--
	}
	return max(1, lines)
}

func importOptions(p dto.ImportTransactionsPayload) dto.ImportOptions {
	def := csvimport.DefaultOptions()
	opts := dto.ImportOptions{
		DeduplicateThreshold: def.DeduplicateThreshold,
		BatchSize:            def.BatchSize,
		BatchDelay:           def.BatchDelay,
	}
	if p.DeduplicateThreshold != nil {
		opts.DeduplicateThreshold = *p.DeduplicateThreshold
	}
	if p.BatchSize != nil {
		opts.BatchSize = *p.BatchSize
	}
	if p.BatchDelay != nil {
		opts.BatchDelay = time.Duration(*p.BatchDelay) * time.Millisecond
	}
	return opts
}
