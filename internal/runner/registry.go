package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperlabs/concierge/pkg/models"
)

// ProgressFunc reports execution progress. Percent is clamped to
// [0,100] by the runner and never regresses for a given task id.
type ProgressFunc func(percent int, stage string)

// Worker is the uniform execution contract every worker type
// implements. Run must tolerate re-execution with the same input
// parameters: the queue's retry policy re-runs the entire body, so
// side effects must be idempotent or at least non-corrupting. That is a
// documented obligation on every worker, not enforced mechanically.
type Worker interface {
	Run(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome
}

// Registration holds a worker plus its availability, determined once at
// registration time. Workers whose external dependency is not
// configured are registered unavailable and produce a typed outcome
// instead of per-call credential checks.
type Registration struct {
	Worker    Worker
	Available bool
	Reason    string
}

// Registry maps worker types to their registrations.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.WorkerType]Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[models.WorkerType]Registration)}
}

// Register adds an available worker for the given type.
func (r *Registry) Register(workerType models.WorkerType, worker Worker) error {
	if worker == nil {
		return fmt.Errorf("register %s: worker is nil", workerType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[workerType]; exists {
		return fmt.Errorf("register %s: already registered", workerType)
	}
	r.entries[workerType] = Registration{Worker: worker, Available: true}
	return nil
}

// RegisterUnavailable records that a worker type exists but its external
// dependency is not configured.
func (r *Registry) RegisterUnavailable(workerType models.WorkerType, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[workerType] = Registration{Available: false, Reason: reason}
}

// Get returns the registration for a worker type.
func (r *Registry) Get(workerType models.WorkerType) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[workerType]
	return reg, ok
}

// Types returns the registered worker types.
func (r *Registry) Types() []models.WorkerType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.WorkerType, 0, len(r.entries))
	for workerType := range r.entries {
		types = append(types, workerType)
	}
	return types
}
