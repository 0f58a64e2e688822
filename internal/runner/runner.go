// Package runner wraps worker execution in the uniform lifecycle
// contract: progress reporting, panic containment, wall-clock budgets,
// and acknowledgment/summary generation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/queue"
	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/pkg/models"
)

// staticAcks are the fallback starting acknowledgments per worker type,
// used when acknowledgment generation fails.
var staticAcks = map[models.WorkerType]string{
	models.WorkerCommunication: "On it, setting that up now.",
	models.WorkerResearch:      "On it, digging into that now.",
	models.WorkerProspects:     "On it, starting the search now.",
}

// staticSummaries are the fallback finished summaries per worker type.
var staticSummaries = map[models.WorkerType]string{
	models.WorkerCommunication: "Done. Your request is all set.",
	models.WorkerResearch:      "Done. The research is ready.",
	models.WorkerProspects:     "Done. The prospect search finished.",
}

// Config contains the dependencies for a Runner.
type Config struct {
	Store     *store.Store
	Broker    *queue.EventBroker
	Registry  *Registry
	Completer llm.Completer
	// Timeout returns the wall-clock budget per worker type.
	// Zero disables the budget for that type.
	Timeout func(models.WorkerType) time.Duration
}

// Runner executes tasks through the Worker contract. It is the core's
// primary defensive boundary: no fault inside a worker's Run ever
// reaches the queue as anything but a failure outcome.
type Runner struct {
	cfg Config

	// lastPercent tracks the highest percent reported per task id, so
	// progress stays monotonic across retries.
	lastPercent sync.Map // taskID -> int
}

// New creates a Runner.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

// Execute runs one task to an outcome. It never panics and never
// returns an unhandled fault.
func (r *Runner) Execute(ctx context.Context, task *models.Task) models.Outcome {
	reg, ok := r.cfg.Registry.Get(task.WorkerType)
	if !ok {
		return models.Failuref("no worker registered for type %q", task.WorkerType)
	}
	if !reg.Available {
		return models.Unavailable(reg.Reason)
	}

	if task.AttemptCount <= 1 {
		r.acknowledge(ctx, task)
	}

	report := r.progressFunc(task)

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Timeout != nil {
		if budget := r.cfg.Timeout(task.WorkerType); budget > 0 {
			runCtx, cancel = context.WithTimeout(ctx, budget)
			defer cancel()
		}
	}

	outcome := r.invoke(runCtx, reg.Worker, task, report)

	if outcome.Kind == models.OutcomeSuccess {
		r.attachSummary(ctx, task, &outcome)
	}

	return outcome
}

// Forget drops the progress floor for a task. Called by the pool when
// the task reaches a terminal status; a suspended task keeps its floor
// so progress stays monotonic across the confirmation resume.
func (r *Runner) Forget(taskID string) {
	r.lastPercent.Delete(taskID)
}

// invoke calls the worker with panic containment and the wall-clock
// budget. The worker goroutine is not preempted on timeout; it is
// abandoned and its eventual result discarded.
func (r *Runner) invoke(ctx context.Context, worker Worker, task *models.Task, report ProgressFunc) models.Outcome {
	done := make(chan models.Outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[runner] task %s: worker panicked: %v", task.ID, rec)
				done <- models.Failuref("worker fault: %v", rec)
			}
		}()
		done <- worker.Run(ctx, task, report)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("[runner] task %s: wall-clock budget exceeded", task.ID)
			return models.Failuref("timeout")
		}
		return models.Failuref("cancelled")
	}
}

// progressFunc builds the reporting callback for one task. Percent is
// clamped to [0,100] and regressions are ignored, including across
// retry attempts.
func (r *Runner) progressFunc(task *models.Task) ProgressFunc {
	return func(percent int, stage string) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}

		for {
			prev, _ := r.lastPercent.LoadOrStore(task.ID, 0)
			last := prev.(int)
			if percent < last {
				return
			}
			if r.lastPercent.CompareAndSwap(task.ID, last, percent) {
				break
			}
		}

		if err := r.cfg.Store.UpdateProgress(task.ID, percent, stage); err != nil {
			log.Printf("[runner] task %s: record progress: %v", task.ID, err)
		}

		r.cfg.Broker.Emit(models.Event{
			Type:       models.EventProgressed,
			TaskID:     task.ID,
			UserID:     task.UserID,
			WorkerType: task.WorkerType,
			Status:     models.TaskStatusRunning,
			Percent:    percent,
			Stage:      stage,
		})
	}
}

// acknowledge emits a short human-readable "starting" note. Generation
// is delegated to the completion service with a static per-worker
// fallback; an acknowledgment failure never fails the task.
func (r *Runner) acknowledge(ctx context.Context, task *models.Task) {
	message := staticAcks[task.WorkerType]
	if message == "" {
		message = "On it."
	}

	if r.cfg.Completer != nil {
		generated, err := r.cfg.Completer.Complete(ctx, llm.Request{
			System:    "Write one short, friendly sentence acknowledging that you are starting the user's request. No questions, no promises about timing.",
			User:      fmt.Sprintf("Request kind: %s. Request: %s", task.TaskKind, describeTask(task)),
			MaxTokens: 128,
		})
		if err != nil {
			log.Printf("[runner] task %s: acknowledgment generation failed, using fallback: %v", task.ID, err)
		} else if generated != "" {
			message = generated
		}
	}

	r.cfg.Broker.Emit(models.Event{
		Type:       models.EventProgressed,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     models.TaskStatusRunning,
		Percent:    0,
		Stage:      "starting",
		Message:    message,
	})
}

// attachSummary adds a "finished" summary to the success payload.
// Summary generation failures fall back to a static string per worker
// type and never fail the task.
func (r *Runner) attachSummary(ctx context.Context, task *models.Task, outcome *models.Outcome) {
	if outcome.Payload == nil {
		outcome.Payload = map[string]string{}
	}
	if _, exists := outcome.Payload["summary"]; exists {
		return
	}

	summary := staticSummaries[task.WorkerType]
	if summary == "" {
		summary = "Done."
	}

	if r.cfg.Completer != nil {
		generated, err := r.cfg.Completer.Complete(ctx, llm.Request{
			System:    "Write one short, friendly sentence summarizing that the user's request finished successfully.",
			User:      fmt.Sprintf("Request kind: %s. Result: %v", task.TaskKind, outcome.Payload),
			MaxTokens: 128,
		})
		if err != nil {
			log.Printf("[runner] task %s: summary generation failed, using fallback: %v", task.ID, err)
		} else if generated != "" {
			summary = generated
		}
	}

	outcome.Payload["summary"] = summary
}

// describeTask picks the most descriptive input parameter for prompt
// context.
func describeTask(task *models.Task) string {
	for _, key := range []string{"subject", "topic", "query", "body"} {
		if value := task.InputParameters[key]; value != "" {
			return value
		}
	}
	return task.TaskKind
}

// Verify Runner implements the queue's Executor at compile time.
var _ queue.Executor = (*Runner)(nil)
