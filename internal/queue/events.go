package queue

import "time"

type EventType string

const (
	EventReady     EventType = "ready"
	EventActive    EventType = "active"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventError     EventType = "error"
	EventStalled   EventType = "stalled"
)

// Event is a worker lifecycle notification. Job is nil for ready and error.
type Event struct {
	Type     EventType
	Worker   string
	Job      *Job
	Result   any
	Err      error
	Progress int
	At       time.Time
}

type Listener func(Event)
