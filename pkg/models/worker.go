package models

// WorkerType is a category of specialized execution logic with its own
// queue and concurrency limit.
type WorkerType string

const (
	// WorkerRouter means the message was fully handled by the router
	// itself and no task is created.
	WorkerRouter WorkerType = "router"
	// WorkerCommunication handles reminders, messages, and scheduling.
	WorkerCommunication WorkerType = "communication"
	// WorkerResearch handles research and summarization requests.
	WorkerResearch WorkerType = "research"
	// WorkerProspects handles prospect search against external sources.
	WorkerProspects WorkerType = "prospects"
)

// Valid returns true if the worker type is a known value.
func (w WorkerType) Valid() bool {
	switch w {
	case WorkerRouter, WorkerCommunication, WorkerResearch, WorkerProspects:
		return true
	default:
		return false
	}
}

// QueueWorkerTypes returns the worker types that own a task queue.
// The router is excluded: it never executes tasks.
func QueueWorkerTypes() []WorkerType {
	return []WorkerType{WorkerCommunication, WorkerResearch, WorkerProspects}
}
