package router

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/timeutil"
	"github.com/harperlabs/concierge/pkg/models"
)

// extractionSpec describes the parameter schema for one task kind. The
// schema is applied once here, at routing time; downstream code reads
// the normalized keys and never re-parses the message.
type extractionSpec struct {
	// keys are the parameter names the extraction call may return.
	keys []string
	// instructions describe each key to the extraction model.
	instructions string
}

var extractionSpecs = map[string]extractionSpec{
	"reminder": {
		keys: []string{"subject", "time", "date"},
		instructions: `subject: what the reminder is about (short phrase)
time: the clock time in 24-hour HH:MM form, or "" if the user gave none
date: "today", "tomorrow", or a YYYY-MM-DD date; "" if the user gave none`,
	},
	"message": {
		keys: []string{"recipient", "body"},
		instructions: `recipient: who the message is for, or "" if unclear
body: the message content, or "" if unclear`,
	},
	"search": {
		keys: []string{"query", "region"},
		instructions: `query: what kind of prospects to search for
region: the geographic area, or "" if the user gave none`,
	},
	"summary": {
		keys: []string{"topic"},
		instructions: `topic: the subject to research (short phrase)`,
	},
}

// extractParameters runs one extraction call for the chosen target and
// merges the reply over the worker's deterministic defaults. Any
// failure of the call (transport, non-JSON, missing keys) degrades to
// the defaults; extraction never fails the classification.
func (r *Router) extractParameters(ctx context.Context, workerType models.WorkerType, taskKind, message string) map[string]string {
	params := defaultParameters(workerType, taskKind, message)

	spec, ok := extractionSpecs[taskKind]
	if !ok || r.completer == nil {
		return params
	}

	reply, err := r.completer.Complete(ctx, llm.Request{
		System: fmt.Sprintf(`Extract parameters from the user's request as a JSON object with exactly these keys:
%s
Use "" for anything the user did not specify. Never invent values.`, spec.instructions),
		User:      message,
		ForceJSON: true,
		MaxTokens: 512,
	})
	if err != nil {
		log.Printf("[router] parameter extraction failed for %s/%s, using defaults: %v", workerType, taskKind, err)
		return params
	}

	// A transport error and a non-JSON reply take the same path.
	body := reply
	if idx := strings.Index(body, "{"); idx >= 0 {
		body = body[idx:]
		if end := strings.LastIndex(body, "}"); end >= 0 {
			body = body[:end+1]
		}
	}
	if !gjson.Valid(body) {
		log.Printf("[router] parameter extraction returned non-JSON for %s/%s, using defaults", workerType, taskKind)
		return params
	}

	for _, key := range spec.keys {
		if value := gjson.Get(body, key); value.Exists() && value.String() != "" {
			params[key] = value.String()
		}
	}

	normalizeParameters(taskKind, params)
	return params
}

// defaultParameters is the deterministic fallback parameter set per
// worker type.
func defaultParameters(workerType models.WorkerType, taskKind, message string) map[string]string {
	switch workerType {
	case models.WorkerCommunication:
		if taskKind == "message" {
			return map[string]string{"recipient": "", "body": message}
		}
		return map[string]string{"subject": message, "time": "", "date": ""}
	case models.WorkerProspects:
		return map[string]string{"query": message, "region": ""}
	case models.WorkerResearch:
		return map[string]string{"topic": message}
	default:
		return map[string]string{}
	}
}

// normalizeParameters canonicalizes extracted values in place.
func normalizeParameters(taskKind string, params map[string]string) {
	if taskKind != "reminder" {
		return
	}
	if raw := params["time"]; raw != "" {
		if clock, ok := timeutil.NormalizeClock(raw); ok {
			params["time"] = clock
		} else {
			// Unparseable times are treated as absent so the worker
			// asks instead of scheduling garbage.
			params["time"] = ""
		}
	}
}
