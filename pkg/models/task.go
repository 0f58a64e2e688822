// Package models defines the shared types for the concierge task core.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued but not yet admitted.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates an executor currently holds the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusAwaitingConfirmation indicates the task is suspended
	// pending a clarifying answer from the user.
	TaskStatusAwaitingConfirmation TaskStatus = "awaiting_confirmation"
	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusAwaitingConfirmation,
		TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are permitted.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// CanTransitionTo reports whether a transition from s to next is legal.
// The legality table is the sole locking discipline between executors:
//
//	pending               -> running | failed (cancellation)
//	running               -> succeeded | failed | awaiting_confirmation
//	awaiting_confirmation -> running | failed
//	succeeded | failed    -> (nothing)
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusFailed
	case TaskStatusRunning:
		return next == TaskStatusSucceeded || next == TaskStatusFailed ||
			next == TaskStatusAwaitingConfirmation
	case TaskStatusAwaitingConfirmation:
		return next == TaskStatusRunning || next == TaskStatusFailed
	default:
		return false
	}
}

// Task represents one unit of asynchronous work created from a routing
// decision. A task is mutated only by the executor currently holding it;
// the store's transition guard enforces that single-writer rule.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// UserID identifies the user the task belongs to.
	UserID string `json:"user_id"`
	// SessionID identifies the conversation the task was created in.
	// Informational: confirmations are keyed by user, not session.
	SessionID string `json:"session_id,omitempty"`
	// WorkerType is the worker category that executes this task.
	WorkerType WorkerType `json:"worker_type"`
	// TaskKind is the kind tag within the worker type (e.g. "reminder").
	TaskKind string `json:"task_kind"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// ProgressPercent is 0-100 and non-decreasing while running.
	ProgressPercent int `json:"progress_percent"`
	// ProgressStage is a short label for the current execution stage.
	ProgressStage string `json:"progress_stage,omitempty"`
	// InputParameters holds the extracted parameters. Immutable once set
	// except for confirmation merges.
	InputParameters map[string]string `json:"input_parameters"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// AttemptCount is the number of execution attempts made so far.
	AttemptCount int `json:"attempt_count"`
	// Result is the opaque success payload. Set only when succeeded.
	Result map[string]string `json:"result,omitempty"`
	// ErrorMessage is the user-readable failure message. Set only when failed.
	ErrorMessage string `json:"error_message,omitempty"`
	// ConfirmationCount is the number of confirmation pauses this task
	// has gone through. At most one is allowed per task.
	ConfirmationCount int `json:"confirmation_count"`
}

// CloneParameters returns a copy of the task's input parameters.
func (t *Task) CloneParameters() map[string]string {
	params := make(map[string]string, len(t.InputParameters))
	for k, v := range t.InputParameters {
		params[k] = v
	}
	return params
}
