package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/pkg/models"
)

// Executor runs one task to an outcome. Implemented by the runner; it
// never lets a fault escape as anything other than a failure outcome.
// Forget releases any per-task executor state (progress floors) once
// the task is terminal; it is not called on suspension, so progress
// stays monotonic across a confirmation resume.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) models.Outcome
	Forget(taskID string)
}

// Suspender persists a confirmation pause for a task that returned a
// needs-confirmation outcome. Implemented by the confirmation manager.
type Suspender interface {
	Suspend(ctx context.Context, task *models.Task, outcome models.Outcome) error
}

// PoolConfig contains the dependencies and policy for a Pool. All
// collaborators are injected; the pool is an explicitly constructed
// component, never a package-level singleton.
type PoolConfig struct {
	Store     *store.Store
	Broker    *EventBroker
	Executor  Executor
	Suspender Suspender

	// WorkerTypes are the queues to run. Defaults to all queue-owning
	// worker types.
	WorkerTypes []models.WorkerType
	// Limit returns the concurrency limit per worker type. Defaults to 2.
	Limit func(models.WorkerType) int
	// MaxAttempts is the total attempt budget per task. Defaults to 3.
	MaxAttempts int
	// RetryBase is the first retry delay, doubled per attempt.
	// Defaults to 2s.
	RetryBase time.Duration
}

// lane is the state of one worker type's queue.
type lane struct {
	workerType models.WorkerType
	limit      int

	mu      sync.Mutex
	fifo    []*models.Task
	running int
	paused  bool

	// wake nudges the admission loop; buffered so signals coalesce.
	wake chan struct{}
}

func (l *lane) nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pool owns one FIFO queue and one admission loop per worker type.
// Within a worker type, tasks are admitted in enqueue order subject to
// the concurrency limit; there is no ordering across worker types.
type Pool struct {
	cfg   PoolConfig
	lanes map[models.WorkerType]*lane

	// quit stops admission; execCtx cancels in-flight executions.
	quit       chan struct{}
	execCtx    context.Context
	execCancel context.CancelFunc

	// noRetry holds task IDs whose retries were cancelled.
	noRetry sync.Map

	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// NewPool creates a Pool. Call Start to begin admission.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("pool: Store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("pool: Executor is required")
	}
	if cfg.Broker == nil {
		cfg.Broker = NewEventBroker()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if len(cfg.WorkerTypes) == 0 {
		cfg.WorkerTypes = models.QueueWorkerTypes()
	}

	execCtx, execCancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:        cfg,
		lanes:      make(map[models.WorkerType]*lane),
		quit:       make(chan struct{}),
		execCtx:    execCtx,
		execCancel: execCancel,
	}

	for _, workerType := range cfg.WorkerTypes {
		limit := 2
		if cfg.Limit != nil {
			if l := cfg.Limit(workerType); l > 0 {
				limit = l
			}
		}
		p.lanes[workerType] = &lane{
			workerType: workerType,
			limit:      limit,
			wake:       make(chan struct{}, 1),
		}
	}

	return p, nil
}

// Broker returns the pool's event broker.
func (p *Pool) Broker() *EventBroker {
	return p.cfg.Broker
}

// SetSuspender binds the confirmation suspender. The pool and the
// suspender reference each other, so the binding happens after
// construction. Must be called before Start.
func (p *Pool) SetSuspender(s Suspender) {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.cfg.Suspender = s
}

// Recover re-admits work persisted by a previous process: tasks left
// in running are reset to pending (their executor died with the
// process), then every pending task is enqueued in creation order.
// Call before Start so recovered tasks sit at the front of each lane.
func (p *Pool) Recover() error {
	reset, err := p.cfg.Store.ResetInterrupted()
	if err != nil {
		return fmt.Errorf("pool: recover: %w", err)
	}
	if reset > 0 {
		log.Printf("[queue] reset %d interrupted task(s) to pending", reset)
	}

	pending, err := p.cfg.Store.ListPending()
	if err != nil {
		return fmt.Errorf("pool: recover: %w", err)
	}
	for _, task := range pending {
		if err := p.Enqueue(task); err != nil {
			// A pending row for an unknown worker type is not re-runnable.
			log.Printf("[queue] recover: %v", err)
		}
	}
	if len(pending) > 0 {
		log.Printf("[queue] re-admitted %d persisted task(s)", len(pending))
	}
	return nil
}

// Start launches the admission loops.
func (p *Pool) Start() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for _, l := range p.lanes {
		p.wg.Add(1)
		go p.admitLoop(l)
	}
}

// Enqueue adds a task to its worker type's queue. The task must already
// be persisted; enqueue order is admission order within the lane.
func (p *Pool) Enqueue(task *models.Task) error {
	l, ok := p.lanes[task.WorkerType]
	if !ok {
		return fmt.Errorf("enqueue task %s: no queue for worker type %q", task.ID, task.WorkerType)
	}

	l.mu.Lock()
	l.fifo = append(l.fifo, task)
	l.mu.Unlock()

	p.cfg.Broker.Emit(models.Event{
		Type:       models.EventEnqueued,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     task.Status,
	})

	l.nudge()
	return nil
}

// Cancel removes a pending task before admission. For a task already
// running it prevents any further retry after a failure. An in-flight
// run is never preempted.
func (p *Pool) Cancel(taskID string) {
	for _, l := range p.lanes {
		l.mu.Lock()
		for i, task := range l.fifo {
			if task.ID == taskID {
				l.fifo = append(l.fifo[:i], l.fifo[i+1:]...)
				l.mu.Unlock()

				// The task never ran; mark it failed so it is not stuck.
				if err := p.cfg.Store.Transition(taskID, models.TaskStatusFailed, nil, "Cancelled before it started."); err != nil {
					log.Printf("[queue] cancel: transition task %s: %v", taskID, err)
					return
				}
				p.emitTerminal(task, models.TaskStatusFailed, "Cancelled before it started.", nil)
				return
			}
		}
		l.mu.Unlock()
	}
	p.noRetry.Store(taskID, true)
}

// Pause stops admission for one worker type. Running tasks finish.
func (p *Pool) Pause(workerType models.WorkerType) {
	if l, ok := p.lanes[workerType]; ok {
		l.mu.Lock()
		l.paused = true
		l.mu.Unlock()
		log.Printf("[queue] %s: paused", workerType)
	}
}

// Resume restarts admission for one worker type.
func (p *Pool) Resume(workerType models.WorkerType) {
	if l, ok := p.lanes[workerType]; ok {
		l.mu.Lock()
		l.paused = false
		l.mu.Unlock()
		log.Printf("[queue] %s: resumed", workerType)
		l.nudge()
	}
}

// Depth returns the number of tasks waiting in one lane.
func (p *Pool) Depth(workerType models.WorkerType) int {
	l, ok := p.lanes[workerType]
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fifo)
}

// RunningCount returns the number of tasks currently executing in one
// lane.
func (p *Pool) RunningCount(workerType models.WorkerType) int {
	l, ok := p.lanes[workerType]
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Shutdown drains the pool: admission stops immediately, then in-flight
// executions are given until ctx expires before being cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.startMu.Lock()
	select {
	case <-p.quit:
		// Already shut down.
	default:
		close(p.quit)
	}
	p.startMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.execCancel()
		<-done
		return ctx.Err()
	}
}

// admitLoop is the scheduling loop for one lane. It pulls at most
// limit - running tasks at a time, transitions each to running, and
// hands it to the executor.
func (p *Pool) admitLoop(l *lane) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.paused || l.running >= l.limit || len(l.fifo) == 0 {
				l.mu.Unlock()
				break
			}
			task := l.fifo[0]
			l.fifo = l.fifo[1:]
			l.running++
			l.mu.Unlock()

			// The guarded transition is the single-writer gate: when two
			// resumes race on one task id, exactly one admission wins.
			if err := p.cfg.Store.Transition(task.ID, models.TaskStatusRunning, nil, ""); err != nil {
				if errors.Is(err, store.ErrInvalidTransition) {
					log.Printf("[queue] %s: contract violation admitting task %s: %v", l.workerType, task.ID, err)
				} else {
					log.Printf("[queue] %s: admit task %s: %v", l.workerType, task.ID, err)
				}
				l.mu.Lock()
				l.running--
				l.mu.Unlock()
				continue
			}
			task.Status = models.TaskStatusRunning

			p.wg.Add(1)
			go func(task *models.Task) {
				defer p.wg.Done()
				p.execute(l, task)

				l.mu.Lock()
				l.running--
				l.mu.Unlock()
				l.nudge()
			}(task)
		}
	}
}

// execute runs one task through the retry policy until it reaches a
// terminal status or suspends for confirmation.
func (p *Pool) execute(l *lane, task *models.Task) {
	for {
		attempt, err := p.cfg.Store.IncrementAttempt(task.ID)
		if err != nil {
			log.Printf("[queue] %s: increment attempt for task %s: %v", l.workerType, task.ID, err)
			attempt = task.AttemptCount + 1
		}
		task.AttemptCount = attempt

		outcome := p.cfg.Executor.Execute(p.execCtx, task)

		switch outcome.Kind {
		case models.OutcomeSuccess:
			if err := p.cfg.Store.Transition(task.ID, models.TaskStatusSucceeded, outcome.Payload, ""); err != nil {
				log.Printf("[queue] %s: complete task %s: %v", l.workerType, task.ID, err)
				return
			}
			p.emitTerminal(task, models.TaskStatusSucceeded, "", outcome.Payload)
			return

		case models.OutcomeNeedsConfirmation:
			p.suspend(task, outcome)
			return

		case models.OutcomeUnavailable:
			// Not retryable: the dependency will still be unconfigured.
			msg := fmt.Sprintf("This request needs a service that isn't set up yet (%s).", outcome.Message)
			p.fail(l, task, msg)
			return

		case models.OutcomeFailure:
			log.Printf("[queue] %s: task %s attempt %d failed: %s", l.workerType, task.ID, attempt, outcome.Message)

			if _, cancelled := p.noRetry.Load(task.ID); cancelled || attempt >= p.cfg.MaxAttempts {
				msg := fmt.Sprintf("I couldn't finish this after %d attempts. Please try again later.", attempt)
				if cancelled {
					msg = "Stopped at your request."
				}
				p.fail(l, task, msg)
				return
			}

			delay := p.cfg.RetryBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-p.execCtx.Done():
				p.fail(l, task, "The service shut down before this finished.")
				return
			}
			// Re-run the whole task body. Workers are required to make
			// re-execution with the same inputParameters safe to repeat.
		}
	}
}

// suspend hands a needs-confirmation outcome to the confirmation
// manager. A missing suspender is a wiring bug; the task fails rather
// than sitting running forever.
func (p *Pool) suspend(task *models.Task, outcome models.Outcome) {
	if p.cfg.Suspender == nil {
		p.fail(p.lanes[task.WorkerType], task, "This request needed a follow-up question, which isn't available right now.")
		return
	}
	if err := p.cfg.Suspender.Suspend(p.execCtx, task, outcome); err != nil {
		log.Printf("[queue] %s: suspend task %s: %v", task.WorkerType, task.ID, err)
		p.fail(p.lanes[task.WorkerType], task, "This request needed a follow-up question, which couldn't be sent.")
	}
}

// fail moves a task to failed with a plain-language message. Raw
// upstream error text stays in the logs, never in the record.
func (p *Pool) fail(l *lane, task *models.Task, message string) {
	if err := p.cfg.Store.Transition(task.ID, models.TaskStatusFailed, nil, message); err != nil {
		log.Printf("[queue] %s: fail task %s: %v", l.workerType, task.ID, err)
		return
	}
	p.emitTerminal(task, models.TaskStatusFailed, message, nil)
}

// emitTerminal announces a terminal status and releases the per-task
// state held by the pool and the executor. Task ids would otherwise
// accumulate in a long-lived process.
func (p *Pool) emitTerminal(task *models.Task, status models.TaskStatus, message string, payload map[string]string) {
	p.noRetry.Delete(task.ID)
	p.cfg.Executor.Forget(task.ID)
	p.cfg.Broker.Emit(models.Event{
		Type:       models.EventTerminal,
		TaskID:     task.ID,
		UserID:     task.UserID,
		WorkerType: task.WorkerType,
		Status:     status,
		Message:    message,
		Payload:    payload,
	})
}
