package models

// RoutingDecision is the classification output for one inbound message.
// It is ephemeral: produced per message and never persisted.
type RoutingDecision struct {
	// TargetWorkerType is the worker type the message routes to.
	// WorkerRouter means the router handled the message itself.
	TargetWorkerType WorkerType `json:"target_worker_type"`
	// TaskKind is the kind tag within the worker type.
	TaskKind string `json:"task_kind"`
	// Confidence is a coarse 0-1 signal from the matched predicate
	// category. It is a static per-category value, not a calibrated
	// probability.
	Confidence float64 `json:"confidence"`
	// ExtractedParameters holds parameters pulled from the message.
	ExtractedParameters map[string]string `json:"extracted_parameters"`
	// OriginalMessage is the raw inbound text.
	OriginalMessage string `json:"original_message"`
	// MatchedKeyword is the predicate keyword that triggered the route.
	MatchedKeyword string `json:"matched_keyword,omitempty"`
	// Reply is the router's direct answer when TargetWorkerType is
	// WorkerRouter. Empty otherwise.
	Reply string `json:"reply,omitempty"`
}
