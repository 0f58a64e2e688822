// Package router turns free-text user messages into routing decisions.
// Classification is deterministic keyword matching; the external
// text-completion service is consulted only to extract structured
// parameters once a target is already chosen.
package router

import (
	"context"
	"log"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/pkg/models"
)

// generalReplyFallback is returned when the router handles a message
// itself and the reply generation call fails.
const generalReplyFallback = "I can set reminders, research topics, and search for prospects. What would you like me to do?"

// Router is the classification engine. It is safe for concurrent use.
type Router struct {
	rules     []Rule
	completer llm.Completer
}

// New creates a Router with the given rule table. A nil or empty table
// falls back to the built-in rules.
func New(rules []Rule, completer llm.Completer) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Router{rules: rules, completer: completer}
}

// Classify maps a message to a routing decision. It never returns an
// error: classification ambiguity routes to the router itself, and
// parameter-extraction failures degrade to per-worker defaults.
func (r *Router) Classify(ctx context.Context, message, userID string) models.RoutingDecision {
	rule, keyword := matchRule(r.rules, message)
	if rule == nil {
		return models.RoutingDecision{
			TargetWorkerType:    models.WorkerRouter,
			TaskKind:            "general",
			Confidence:          0.50,
			ExtractedParameters: map[string]string{},
			OriginalMessage:     message,
			Reply:               r.generalReply(ctx, message),
		}
	}

	params := r.extractParameters(ctx, rule.WorkerType, rule.TaskKind, message)

	return models.RoutingDecision{
		TargetWorkerType:    rule.WorkerType,
		TaskKind:            rule.TaskKind,
		Confidence:          rule.Confidence,
		ExtractedParameters: params,
		OriginalMessage:     message,
		MatchedKeyword:      keyword,
	}
}

// Match reports whether the message matches a routing rule, with no
// extraction or reply generation. A match means the message routes
// unambiguously, which lets callers treat it as a new request even
// while a confirmation question is open.
func (r *Router) Match(message string) (models.WorkerType, bool) {
	rule, _ := matchRule(r.rules, message)
	if rule == nil {
		return "", false
	}
	return rule.WorkerType, true
}

// generalReply answers a message the router handles itself. Generation
// failures fall back to a static string and are never surfaced.
func (r *Router) generalReply(ctx context.Context, message string) string {
	if r.completer == nil {
		return generalReplyFallback
	}

	reply, err := r.completer.Complete(ctx, llm.Request{
		System:    "You are concierge, a personal assistant. Answer the user briefly and mention you can set reminders, research topics, and search for prospects when relevant.",
		User:      message,
		MaxTokens: 512,
	})
	if err != nil || reply == "" {
		log.Printf("[router] general reply generation failed, using fallback: %v", err)
		return generalReplyFallback
	}
	return reply
}
