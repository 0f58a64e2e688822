// Package llm provides the text-completion client used for parameter
// extraction, answer extraction, and acknowledgment generation.
package llm

import "context"

// Request is one completion request. Callers that set ForceJSON must
// treat a non-parseable reply exactly like a transport error: both take
// the same fallback path, never distinct control flow.
type Request struct {
	// System is the system instruction block.
	System string
	// User is the user content.
	User string
	// ForceJSON asks the model to reply with JSON only.
	ForceJSON bool
	// MaxTokens bounds the reply length. Zero means the default (1024).
	MaxTokens int
}

// Completer issues a single text completion. Implemented by Client for
// production and by fakes in tests.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
