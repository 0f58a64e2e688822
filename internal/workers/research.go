package workers

import (
	"context"
	"fmt"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/runner"
	"github.com/harperlabs/concierge/pkg/models"
)

// Research answers open-ended questions through the completion service.
type Research struct {
	completer llm.Completer
}

// NewResearch creates the research worker.
func NewResearch(completer llm.Completer) *Research {
	return &Research{completer: completer}
}

// Run produces a findings write-up for the task's topic. The whole body
// re-runs on retry; it only reads inputs and regenerates the write-up.
func (w *Research) Run(ctx context.Context, task *models.Task, report runner.ProgressFunc) models.Outcome {
	topic := task.InputParameters["topic"]
	if topic == "" {
		topic = task.InputParameters["query"]
	}
	if topic == "" {
		return models.Failuref("research task %s has no topic", task.ID)
	}

	report(20, "researching")

	findings, err := w.completer.Complete(ctx, llm.Request{
		System:    "You are a research assistant. Give a concise, factual write-up of the topic: key points first, then caveats. Plain text, a few short paragraphs at most.",
		User:      fmt.Sprintf("Topic: %s", topic),
		MaxTokens: 1024,
	})
	if err != nil {
		return models.Failuref("research %q: %v", topic, err)
	}

	report(90, "writing up")

	return models.Success(map[string]string{
		"topic":    topic,
		"findings": findings,
	})
}

var _ runner.Worker = (*Research)(nil)
