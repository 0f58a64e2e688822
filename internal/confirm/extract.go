package confirm

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/timeutil"
	"github.com/harperlabs/concierge/pkg/models"
)

// llmConfidenceFloor is the minimum model-reported confidence accepted
// from fallback extraction.
const llmConfidenceFloor = 0.6

// ordinalPattern matches references to a suggested answer by position,
// like "the first one" or "2nd".
var ordinalPattern = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th)\b`)

var ordinalIndex = map[string]int{
	"first": 0, "1st": 0,
	"second": 1, "2nd": 1,
	"third": 2, "3rd": 2,
	"fourth": 3, "4th": 3,
	"fifth": 4, "5th": 4,
}

// extractAnswer resolves the user's reply into a concrete value for the
// context's answer key. Cheap deterministic matching runs first: exact
// suggested-answer match, ordinal reference, then clock-time parsing for
// time answers. The completion service is the last resort, and its
// failure means low confidence, never an error.
func (m *Manager) extractAnswer(ctx context.Context, cctx *models.ConfirmationContext, text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	lowered := strings.ToLower(trimmed)

	for _, answer := range cctx.SuggestedAnswers {
		if strings.EqualFold(trimmed, answer.Value) || strings.Contains(lowered, strings.ToLower(answer.Value)) {
			return answer.Value, true
		}
	}

	if match := ordinalPattern.FindString(lowered); match != "" {
		idx := ordinalIndex[strings.ToLower(match)]
		if idx < len(cctx.SuggestedAnswers) {
			return cctx.SuggestedAnswers[idx].Value, true
		}
	}

	if cctx.AnswerKey == "time" {
		if clock, ok := timeutil.NormalizeClock(trimmed); ok {
			return clock, true
		}
	}

	return m.llmExtract(ctx, cctx, trimmed)
}

// llmExtract asks the completion service to pull the answer out of free
// text, returning low confidence on any transport or parse problem.
func (m *Manager) llmExtract(ctx context.Context, cctx *models.ConfirmationContext, text string) (string, bool) {
	if m.cfg.Completer == nil {
		return "", false
	}

	system := fmt.Sprintf(`You resolve a user's answer to a pending question.
Question: %s
Answer key: %s
Respond with JSON only: {"value": "<the answer>", "confidence": <0.0-1.0>}.
If the message does not answer the question, use confidence 0.`,
		cctx.PendingQuestion, cctx.AnswerKey)

	raw, err := m.cfg.Completer.Complete(ctx, llm.Request{
		System:    system,
		User:      text,
		ForceJSON: true,
		MaxTokens: 256,
	})
	if err != nil {
		log.Printf("[confirm] task %s: answer extraction failed: %v", cctx.TaskID, err)
		return "", false
	}

	body := jsonBody(raw)
	if body == "" || !gjson.Valid(body) {
		log.Printf("[confirm] task %s: answer extraction returned non-JSON", cctx.TaskID)
		return "", false
	}

	value := strings.TrimSpace(gjson.Get(body, "value").String())
	confidence := gjson.Get(body, "confidence").Float()
	if value == "" || confidence < llmConfidenceFloor {
		return "", false
	}

	if cctx.AnswerKey == "time" {
		if clock, ok := timeutil.NormalizeClock(value); ok {
			return clock, true
		}
	}
	return value, true
}

// jsonBody extracts the outermost JSON object from a completion, which
// may surround it with prose.
func jsonBody(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
