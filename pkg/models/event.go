package models

import "time"

// EventType identifies the class of a lifecycle event.
type EventType string

const (
	// EventEnqueued fires when a task is admitted to a queue.
	EventEnqueued EventType = "enqueued"
	// EventProgressed fires on each progress report from a worker.
	EventProgressed EventType = "progressed"
	// EventTerminal fires once when a task reaches succeeded or failed.
	EventTerminal EventType = "terminal"
	// EventConfirmationRequested fires when a task suspends with a
	// pending question.
	EventConfirmationRequested EventType = "confirmation_requested"
	// EventConfirmationResolved fires when a suspended task resumes.
	EventConfirmationResolved EventType = "confirmation_resolved"
)

// Event is one lifecycle event delivered to subscribers. Progress events
// for a given task are observed in non-decreasing percent order by any
// single subscriber.
type Event struct {
	// Type is the event class.
	Type EventType `json:"type"`
	// TaskID is the task the event concerns.
	TaskID string `json:"task_id"`
	// UserID is the owner of the task.
	UserID string `json:"user_id"`
	// WorkerType is the queue the task belongs to.
	WorkerType WorkerType `json:"worker_type"`
	// Status is the task status at emission time.
	Status TaskStatus `json:"status,omitempty"`
	// Percent is the progress percentage (EventProgressed).
	Percent int `json:"percent,omitempty"`
	// Stage is the progress stage label (EventProgressed).
	Stage string `json:"stage,omitempty"`
	// Question is the pending question (EventConfirmationRequested).
	Question string `json:"question,omitempty"`
	// Message carries acknowledgments, summaries, and failure text.
	Message string `json:"message,omitempty"`
	// Payload is the terminal success payload, if any.
	Payload map[string]string `json:"payload,omitempty"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}
