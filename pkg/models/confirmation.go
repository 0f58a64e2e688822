package models

import "time"

// ConfirmationContext is the persisted state describing a task paused
// pending a clarifying answer from the user. At most one open context
// exists per (UserID, TaskID) pair; the store enforces that with its
// primary key.
type ConfirmationContext struct {
	// TaskID back-references the suspended task. Not ownership: the task
	// record remains the single source of truth for task state.
	TaskID string `json:"task_id"`
	// UserID identifies the user the question was sent to.
	UserID string `json:"user_id"`
	// PendingQuestion is the question emitted to the user.
	PendingQuestion string `json:"pending_question"`
	// SuggestedAnswers are ordered candidate values with rationales.
	SuggestedAnswers []SuggestedAnswer `json:"suggested_answers"`
	// PartialState is merged into the task's input parameters on resume.
	PartialState map[string]string `json:"partial_state"`
	// AnswerKey is the input-parameter key the answer resolves.
	AnswerKey string `json:"answer_key"`
	// FollowUpCount counts clarifying re-asks. One re-ask is allowed
	// before the task fails with an unresolved-parameters error.
	FollowUpCount int `json:"follow_up_count"`
	// AskedAt is when the question was emitted.
	AskedAt time.Time `json:"asked_at"`
	// ExpiresAt optionally bounds how long the context stays open.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the context has passed its expiry, if set.
func (c *ConfirmationContext) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
