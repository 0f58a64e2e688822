// Package workers contains the built-in worker implementations:
// communication (reminders and messages), research, and prospects.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/runner"
	"github.com/harperlabs/concierge/internal/timeutil"
	"github.com/harperlabs/concierge/pkg/models"
)

// Communication handles reminders and outbound messages. It is the one
// worker that exercises the confirmation path: a reminder with no
// usable time pauses and asks rather than guessing.
type Communication struct {
	completer llm.Completer
	now       func() time.Time
}

// NewCommunication creates the communication worker. now is injectable
// for tests; nil means time.Now.
func NewCommunication(completer llm.Completer, now func() time.Time) *Communication {
	if now == nil {
		now = time.Now
	}
	return &Communication{completer: completer, now: now}
}

// Run dispatches on the task kind. Re-execution with the same inputs is
// safe: reminders are computed, not sent, and message drafts are
// regenerated whole.
func (w *Communication) Run(ctx context.Context, task *models.Task, report runner.ProgressFunc) models.Outcome {
	switch task.TaskKind {
	case "reminder":
		return w.runReminder(ctx, task, report)
	case "message":
		return w.runMessage(ctx, task, report)
	default:
		return models.Failuref("communication worker cannot handle kind %q", task.TaskKind)
	}
}

func (w *Communication) runReminder(ctx context.Context, task *models.Task, report runner.ProgressFunc) models.Outcome {
	report(10, "checking details")

	clock := task.InputParameters["time"]
	if clock == "" {
		return models.NeedsConfirmation(
			"What time should I set the reminder for?",
			"time",
			[]models.SuggestedAnswer{
				{Value: "09:00", Rationale: "start of the workday"},
				{Value: "14:00", Rationale: "early afternoon"},
			},
			map[string]string{"subject": task.InputParameters["subject"]},
		)
	}
	if normalized, ok := timeutil.NormalizeClock(clock); ok {
		clock = normalized
	}

	report(50, "scheduling")

	date := task.InputParameters["date"]
	if resolved, ok := timeutil.ResolveDate(date, w.now()); ok {
		date = resolved
	} else {
		date = w.now().Format("2006-01-02")
	}

	subject := task.InputParameters["subject"]
	if subject == "" {
		subject = "your reminder"
	}

	report(100, "scheduled")

	return models.Success(map[string]string{
		"subject":       subject,
		"scheduled_for": fmt.Sprintf("%s %s", date, clock),
	})
}

func (w *Communication) runMessage(ctx context.Context, task *models.Task, report runner.ProgressFunc) models.Outcome {
	recipient := task.InputParameters["recipient"]
	if recipient == "" {
		return models.NeedsConfirmation(
			"Who should this message go to?",
			"recipient",
			nil,
			map[string]string{"body": task.InputParameters["body"]},
		)
	}

	report(20, "drafting")

	body := task.InputParameters["body"]
	draft := body
	if w.completer != nil {
		generated, err := w.completer.Complete(ctx, llm.Request{
			System:    "Draft a short, polite message on the user's behalf. Output the message text only.",
			User:      fmt.Sprintf("Recipient: %s. What to say: %s", recipient, body),
			MaxTokens: 512,
		})
		if err != nil {
			return models.Failuref("draft message: %v", err)
		}
		draft = generated
	}

	report(100, "drafted")

	return models.Success(map[string]string{
		"recipient": recipient,
		"draft":     draft,
	})
}

var _ runner.Worker = (*Communication)(nil)
