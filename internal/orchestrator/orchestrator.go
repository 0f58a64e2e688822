// Package orchestrator wires the concierge core together: the store,
// router, queue pool, runner, confirmation manager, and workers. It is
// the single entry point a frontend talks to.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harperlabs/concierge/internal/config"
	"github.com/harperlabs/concierge/internal/confirm"
	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/queue"
	"github.com/harperlabs/concierge/internal/router"
	"github.com/harperlabs/concierge/internal/runner"
	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/internal/workers"
	"github.com/harperlabs/concierge/pkg/models"
)

// confirmTTL bounds how long a pending question stays open before the
// suspended task is failed.
const confirmTTL = 24 * time.Hour

// Orchestrator owns the assembled core. Construct with New, start the
// queues with Start, and feed user messages to HandleUserMessage.
type Orchestrator struct {
	cfg *config.Config

	store   *store.Store
	client  *llm.Client
	router  *router.Router
	broker  *queue.EventBroker
	pool    *queue.Pool
	runner  *runner.Runner
	confirm *confirm.Manager
}

// New builds the full component graph from configuration. Nothing runs
// until Start is called.
func New(cfg *config.Config) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create completion client: %w", err)
	}

	rules := router.DefaultRules()
	if cfg.Router.RulesPath != "" {
		loaded, err := router.LoadRules(cfg.Router.RulesPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("load routing rules: %w", err)
		}
		rules = loaded
	}

	broker := queue.NewEventBroker()

	registry := runner.NewRegistry()
	if err := registry.Register(models.WorkerCommunication, workers.NewCommunication(client, nil)); err != nil {
		st.Close()
		return nil, err
	}
	if err := registry.Register(models.WorkerResearch, workers.NewResearch(client)); err != nil {
		st.Close()
		return nil, err
	}
	if key := cfg.Workers.Prospects.ScraperAPIKey; key != "" {
		if err := registry.Register(models.WorkerProspects, workers.NewProspects(key)); err != nil {
			st.Close()
			return nil, err
		}
	} else {
		registry.RegisterUnavailable(models.WorkerProspects, "prospect search needs a scraper API key")
	}

	run := runner.New(runner.Config{
		Store:     st,
		Broker:    broker,
		Registry:  registry,
		Completer: client,
		Timeout:   cfg.Timeouts.For,
	})

	pool, err := queue.NewPool(queue.PoolConfig{
		Store:       st,
		Broker:      broker,
		Executor:    run,
		Limit:       cfg.Queue.Limit,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryBase:   cfg.Queue.RetryBase,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// The pool and the confirmation manager reference each other: the
	// pool suspends through the manager, the manager resumes through the
	// pool. The suspender is bound after construction, before Start.
	manager := confirm.NewManager(confirm.Config{
		Store:     st,
		Broker:    broker,
		Completer: client,
		Enqueuer:  pool,
		Forgetter: run,
		TTL:       confirmTTL,
	})
	pool.SetSuspender(manager)

	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		client:  client,
		router:  router.New(rules, client),
		broker:  broker,
		pool:    pool,
		runner:  run,
		confirm: manager,
	}, nil
}

// Start recovers work persisted by a previous process and launches the
// queue admission loops.
func (o *Orchestrator) Start() error {
	if err := o.pool.Recover(); err != nil {
		return err
	}
	o.pool.Start()
	return nil
}

// HandleUserMessage processes one inbound message and returns the
// immediate reply. An open confirmation for the user captures the
// message as the pending answer, unless it matches a routing rule and
// so unambiguously starts a new request; the question then stays open
// for the next message.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, userID, sessionID, text string) (string, error) {
	if cctx, open := o.confirm.Open(userID); open {
		if _, routed := o.router.Match(text); !routed {
			return o.confirm.HandleAnswer(ctx, cctx, text), nil
		}
	}

	decision := o.router.Classify(ctx, text, userID)

	// Messages the router answers itself never create a task and never
	// consume quota.
	if decision.TargetWorkerType == models.WorkerRouter {
		return decision.Reply, nil
	}

	if o.cfg.Quota.TasksPerWindow > 0 {
		err := o.store.ConsumeQuota(userID, o.cfg.Quota.Window, o.cfg.Quota.TasksPerWindow)
		if errors.Is(err, store.ErrQuotaExceeded) {
			return "You've hit the request limit for now. Give it a little while and try again.", nil
		}
		if err != nil {
			return "", fmt.Errorf("check quota for user %s: %w", userID, err)
		}
	}

	task := &models.Task{
		ID:              uuid.New().String()[:8],
		UserID:          userID,
		SessionID:       sessionID,
		WorkerType:      decision.TargetWorkerType,
		TaskKind:        decision.TaskKind,
		Status:          models.TaskStatusPending,
		InputParameters: decision.ExtractedParameters,
		CreatedAt:       time.Now(),
	}

	if err := o.store.CreateTask(task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if err := o.pool.Enqueue(task); err != nil {
		return "", fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}

	log.Printf("[orchestrator] user %s: %s/%s task %s (confidence %.2f)",
		userID, task.WorkerType, task.TaskKind, task.ID, decision.Confidence)

	return fmt.Sprintf("Got it, I'm on it (task %s).", task.ID), nil
}

// Events subscribes to lifecycle events with the given buffer size.
func (o *Orchestrator) Events(buffer int) (<-chan models.Event, func()) {
	return o.broker.Subscribe(buffer)
}

// Task returns one task by id.
func (o *Orchestrator) Task(id string) (*models.Task, error) {
	return o.store.GetTask(id)
}

// Tasks returns a user's most recent tasks.
func (o *Orchestrator) Tasks(userID string, limit int) ([]*models.Task, error) {
	return o.store.ListUserTasks(userID, limit)
}

// Cancel cancels a pending task or prevents further retries of a
// running one.
func (o *Orchestrator) Cancel(taskID string) {
	o.pool.Cancel(taskID)
}

// Pause stops admission for one worker type.
func (o *Orchestrator) Pause(workerType models.WorkerType) {
	o.pool.Pause(workerType)
}

// Resume restarts admission for one worker type.
func (o *Orchestrator) Resume(workerType models.WorkerType) {
	o.pool.Resume(workerType)
}

// Stats returns queue statistics for one worker type.
func (o *Orchestrator) Stats(workerType models.WorkerType) (models.QueueStats, error) {
	return o.store.Stats(workerType)
}

// Depth returns the number of tasks waiting in one worker type's queue.
func (o *Orchestrator) Depth(workerType models.WorkerType) int {
	return o.pool.Depth(workerType)
}

// TokensUsed returns the cumulative completion token usage.
func (o *Orchestrator) TokensUsed() (input, output int64) {
	return o.client.Tracker().Total()
}

// Shutdown drains the queues and closes the store. In-flight work gets
// until ctx expires before being cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.pool.Shutdown(ctx)
	o.broker.Close()
	if cerr := o.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
