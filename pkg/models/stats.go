package models

// QueueStats is a derived, read-only view of one worker type's queue.
// It exists for observability only and is never consulted for
// correctness decisions.
type QueueStats struct {
	WorkerType           WorkerType `json:"worker_type"`
	Pending              int        `json:"pending"`
	Running              int        `json:"running"`
	AwaitingConfirmation int        `json:"awaiting_confirmation"`
	Succeeded            int        `json:"succeeded"`
	Failed               int        `json:"failed"`
}

// Total returns the total number of tasks counted.
func (s QueueStats) Total() int {
	return s.Pending + s.Running + s.AwaitingConfirmation + s.Succeeded + s.Failed
}
