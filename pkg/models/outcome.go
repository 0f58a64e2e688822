package models

import "fmt"

// OutcomeKind tags the variant of an execution outcome.
type OutcomeKind int

const (
	// OutcomeSuccess indicates the worker finished with a payload.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailure indicates the worker failed with a message.
	OutcomeFailure
	// OutcomeNeedsConfirmation indicates the worker paused pending a
	// clarifying answer from the user.
	OutcomeNeedsConfirmation
	// OutcomeUnavailable indicates the worker's external dependency is
	// not configured. Determined once at registration, surfaced as a
	// typed outcome instead of per-call credential checks.
	OutcomeUnavailable
)

// String returns a human-readable kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeNeedsConfirmation:
		return "needs_confirmation"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SuggestedAnswer is one candidate value for a pending question.
type SuggestedAnswer struct {
	// Value is the concrete parameter value.
	Value string `json:"value"`
	// Rationale explains why this candidate is offered.
	Rationale string `json:"rationale,omitempty"`
}

// Outcome is the tagged result of one worker execution.
type Outcome struct {
	Kind OutcomeKind

	// Payload is the opaque success payload (OutcomeSuccess).
	Payload map[string]string

	// Message is the failure or unavailability message
	// (OutcomeFailure, OutcomeUnavailable).
	Message string

	// Question is the clarifying question (OutcomeNeedsConfirmation).
	Question string
	// SuggestedAnswers are ordered candidate values for the question.
	SuggestedAnswers []SuggestedAnswer
	// PartialState is merged into the task's input parameters on resume.
	PartialState map[string]string
	// AnswerKey is the input-parameter key the extracted answer is
	// merged under.
	AnswerKey string
}

// Success builds a success outcome with the given payload.
func Success(payload map[string]string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// Failuref builds a failure outcome with a formatted message.
func Failuref(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: fmt.Sprintf(format, args...)}
}

// NeedsConfirmation builds a confirmation-pause outcome. answerKey names
// the input parameter the user's answer resolves.
func NeedsConfirmation(question, answerKey string, answers []SuggestedAnswer, partial map[string]string) Outcome {
	if partial == nil {
		partial = map[string]string{}
	}
	return Outcome{
		Kind:             OutcomeNeedsConfirmation,
		Question:         question,
		AnswerKey:        answerKey,
		SuggestedAnswers: answers,
		PartialState:     partial,
	}
}

// Unavailable builds an outcome for a worker whose external dependency
// is not configured.
func Unavailable(reason string) Outcome {
	return Outcome{Kind: OutcomeUnavailable, Message: reason}
}
