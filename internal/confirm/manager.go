// Package confirm implements the multi-turn confirmation state machine:
// suspending a task with a pending question, matching a later message
// back to the suspended task, and resuming execution with the answer.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/queue"
	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/pkg/models"
)

// unresolvedMessage is the terminal failure text when an answer cannot
// be resolved after the allowed clarifying re-ask.
const unresolvedMessage = "I couldn't resolve the details needed for this request (could not resolve parameters)."

// Enqueuer re-admits a resumed task. Implemented by the worker pool.
// Resumption is a fresh admission, never a woken goroutine.
type Enqueuer interface {
	Enqueue(task *models.Task) error
}

// Forgetter releases per-task executor state once a task is terminal.
// Implemented by the runner.
type Forgetter interface {
	Forget(taskID string)
}

// Config contains the dependencies for a Manager.
type Config struct {
	Store     *store.Store
	Broker    *queue.EventBroker
	Completer llm.Completer
	Enqueuer  Enqueuer
	// Forgetter is optional; when set it is notified of tasks the
	// manager fails directly, which never pass back through the pool.
	Forgetter Forgetter
	// TTL bounds how long a context stays open. Zero means no expiry.
	TTL time.Duration
}

// Manager owns the confirmation lifecycle. Confirmation may occur at
// most once per task: a worker that asks again after being resumed
// fails the task instead of looping.
type Manager struct {
	cfg Config
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Suspend pauses a running task on a needs-confirmation outcome. It
// transitions the task to awaiting_confirmation, persists the context,
// and emits the pending question. A second confirmation request for the
// same task fails it instead.
func (m *Manager) Suspend(ctx context.Context, task *models.Task, outcome models.Outcome) error {
	count, err := m.cfg.Store.IncrementConfirmation(task.ID)
	if err != nil {
		return fmt.Errorf("suspend task %s: %w", task.ID, err)
	}
	if count > 1 {
		log.Printf("[confirm] task %s asked for confirmation twice, failing", task.ID)
		if err := m.cfg.Store.Transition(task.ID, models.TaskStatusFailed, nil, unresolvedMessage); err != nil {
			return fmt.Errorf("fail twice-ambiguous task %s: %w", task.ID, err)
		}
		m.emitTerminal(task, unresolvedMessage)
		return nil
	}

	if err := m.cfg.Store.Transition(task.ID, models.TaskStatusAwaitingConfirmation, nil, ""); err != nil {
		return fmt.Errorf("suspend task %s: %w", task.ID, err)
	}

	answerKey := outcome.AnswerKey
	if answerKey == "" {
		answerKey = "answer"
	}

	cctx := &models.ConfirmationContext{
		TaskID:           task.ID,
		UserID:           task.UserID,
		PendingQuestion:  outcome.Question,
		SuggestedAnswers: outcome.SuggestedAnswers,
		PartialState:     outcome.PartialState,
		AnswerKey:        answerKey,
		AskedAt:          time.Now(),
	}
	if m.cfg.TTL > 0 {
		expires := cctx.AskedAt.Add(m.cfg.TTL)
		cctx.ExpiresAt = &expires
	}

	if err := m.cfg.Store.CreateConfirmation(cctx); err != nil {
		return fmt.Errorf("persist confirmation for task %s: %w", task.ID, err)
	}

	m.cfg.Broker.Emit(models.Event{
		Type:       models.EventConfirmationRequested,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     models.TaskStatusAwaitingConfirmation,
		Question:   outcome.Question,
		Message:    formatQuestion(cctx),
	})

	return nil
}

// Open returns the user's open confirmation context, if any. Expired
// contexts are cleaned up in passing: the context is deleted and the
// suspended task failed so it never sits stuck.
func (m *Manager) Open(userID string) (*models.ConfirmationContext, bool) {
	cctx, err := m.cfg.Store.OpenConfirmation(userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[confirm] lookup open confirmation for user %s: %v", userID, err)
		}
		return nil, false
	}

	if cctx.Expired(time.Now()) {
		log.Printf("[confirm] task %s: confirmation expired, failing task", cctx.TaskID)
		if err := m.cfg.Store.DeleteConfirmation(cctx.UserID, cctx.TaskID); err != nil {
			log.Printf("[confirm] delete expired confirmation for task %s: %v", cctx.TaskID, err)
		}
		message := "I never heard back, so I set this request aside."
		if err := m.cfg.Store.Transition(cctx.TaskID, models.TaskStatusFailed, nil, message); err != nil {
			log.Printf("[confirm] fail expired task %s: %v", cctx.TaskID, err)
		}
		if task, err := m.cfg.Store.GetTask(cctx.TaskID); err == nil {
			m.emitTerminal(task, message)
		}
		return nil, false
	}

	return cctx, true
}

// HandleAnswer interprets an inbound message as the answer to an open
// confirmation. It returns the immediate reply for the user. Low
// extraction confidence triggers one clarifying fallback question built
// from the suggested answers; a second ambiguous answer fails the task.
func (m *Manager) HandleAnswer(ctx context.Context, cctx *models.ConfirmationContext, text string) string {
	value, confident := m.extractAnswer(ctx, cctx, text)
	if !confident {
		count, err := m.cfg.Store.IncrementFollowUp(cctx.UserID, cctx.TaskID)
		if err != nil {
			log.Printf("[confirm] task %s: record follow-up: %v", cctx.TaskID, err)
			count = cctx.FollowUpCount + 1
		}

		if count > 1 {
			return m.giveUp(cctx)
		}

		if len(cctx.SuggestedAnswers) > 0 {
			return fmt.Sprintf("Sorry, I didn't catch that. Did you mean %s? You can also answer with one of: %s.",
				cctx.SuggestedAnswers[0].Value, formatAnswerList(cctx.SuggestedAnswers))
		}
		return "Sorry, I didn't catch that. " + cctx.PendingQuestion
	}

	task, err := m.cfg.Store.GetTask(cctx.TaskID)
	if err != nil {
		log.Printf("[confirm] task %s: load for resume: %v", cctx.TaskID, err)
		return "Something went wrong picking that task back up."
	}

	// Merge order: existing parameters, then the worker's partial state,
	// then the answered value.
	params := task.CloneParameters()
	for k, v := range cctx.PartialState {
		params[k] = v
	}
	params[cctx.AnswerKey] = value

	if err := m.cfg.Store.UpdateParameters(task.ID, params); err != nil {
		log.Printf("[confirm] task %s: merge answer: %v", task.ID, err)
		return "Something went wrong picking that task back up."
	}
	task.InputParameters = params

	if err := m.cfg.Store.DeleteConfirmation(cctx.UserID, cctx.TaskID); err != nil {
		log.Printf("[confirm] task %s: clear confirmation: %v", task.ID, err)
	}

	m.cfg.Broker.Emit(models.Event{
		Type:       models.EventConfirmationResolved,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     task.Status,
		Message:    value,
	})

	if err := m.cfg.Enqueuer.Enqueue(task); err != nil {
		log.Printf("[confirm] task %s: re-enqueue: %v", task.ID, err)
		return "Something went wrong picking that task back up."
	}

	return fmt.Sprintf("Got it, %s. Picking that back up now.", value)
}

// giveUp fails a task whose answer stayed ambiguous after the allowed
// clarifying re-ask.
func (m *Manager) giveUp(cctx *models.ConfirmationContext) string {
	if err := m.cfg.Store.DeleteConfirmation(cctx.UserID, cctx.TaskID); err != nil {
		log.Printf("[confirm] task %s: clear confirmation: %v", cctx.TaskID, err)
	}
	if err := m.cfg.Store.Transition(cctx.TaskID, models.TaskStatusFailed, nil, unresolvedMessage); err != nil {
		log.Printf("[confirm] task %s: fail unresolved: %v", cctx.TaskID, err)
	}
	if task, err := m.cfg.Store.GetTask(cctx.TaskID); err == nil {
		m.emitTerminal(task, unresolvedMessage)
	}
	return "I still couldn't work that out, so I've set the request aside. Feel free to start over with more detail."
}

func (m *Manager) emitTerminal(task *models.Task, message string) {
	if m.cfg.Forgetter != nil {
		m.cfg.Forgetter.Forget(task.ID)
	}
	m.cfg.Broker.Emit(models.Event{
		Type:       models.EventTerminal,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     models.TaskStatusFailed,
		Message:    message,
	})
}

// formatQuestion renders the pending question with its suggestions.
func formatQuestion(cctx *models.ConfirmationContext) string {
	if len(cctx.SuggestedAnswers) == 0 {
		return cctx.PendingQuestion
	}
	return fmt.Sprintf("%s (for example: %s)", cctx.PendingQuestion, formatAnswerList(cctx.SuggestedAnswers))
}

func formatAnswerList(answers []models.SuggestedAnswer) string {
	values := make([]string, len(answers))
	for i, answer := range answers {
		values[i] = answer.Value
	}
	return strings.Join(values, ", ")
}

// Verify Manager implements the queue's Suspender at compile time.
var _ queue.Suspender = (*Manager)(nil)
