package dto

import "time"

// Queue names. Each queue is consumed by its own worker pool.
const (
	QueuePlaidSync          = "plaid-sync"
	QueueImportTransactions = "import-transactions"
	QueueCalendarSync       = "google-calendar-sync"
	QueueSmartInput         = "smart-input"
)

// Task types, one per queue.
const (
	TaskPlaidSync          = "plaid:sync"
	TaskImportTransactions = "finance:import-transactions"
	TaskCalendarSync       = "calendar:google-sync"
	TaskSmartInput         = "smart-input:email"
)

// ImportTransactionsPayload is what producers enqueue after uploading a CSV.
type ImportTransactionsPayload struct {
	UserID               string `json:"userId" validate:"required"`
	FileName             string `json:"fileName"`
	CSVFilePath          string `json:"csvFilePath"`
	AccountID            string `json:"accountId,omitempty"`
	DeduplicateThreshold *int   `json:"deduplicateThreshold,omitempty" validate:"omitempty,min=0,max=100"`
	BatchSize            *int   `json:"batchSize,omitempty" validate:"omitempty,min=1"`
	BatchDelay           *int   `json:"batchDelay,omitempty" validate:"omitempty,min=0"` // milliseconds
}

type ImportOptions struct {
	DeduplicateThreshold int
	BatchSize            int
	BatchDelay           time.Duration
}

// ImportTransactionsJob is the per-run processing context of a CSV import.
type ImportTransactionsJob struct {
	JobID      string
	UserID     string
	FileName   string
	AccountID  string
	CSVContent []byte
	Options    ImportOptions
	Stats      JobStats
	StartTime  time.Time
}

type JobStats struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Skipped        int      `json:"skipped"`
	Merged         int      `json:"merged"`
	Invalid        int      `json:"invalid"`
	Total          int      `json:"total"`
	Errors         []string `json:"errors"`
	Progress       int      `json:"progress"`
	ProcessingTime int64    `json:"processingTime"` // milliseconds
}

type ImportResult struct {
	Success bool     `json:"success"`
	Stats   JobStats `json:"stats"`
}

type ProgressStatus string

const (
	ProgressProcessing ProgressStatus = "processing"
	ProgressDone       ProgressStatus = "done"
	ProgressError      ProgressStatus = "error"
)

// ProgressEvent is broadcast on the import progress channel.
type ProgressEvent struct {
	JobID    string         `json:"jobId"`
	Status   ProgressStatus `json:"status"`
	Stats    *JobStats      `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
	FileName string         `json:"fileName"`
	UserID   string         `json:"userId"`
}
