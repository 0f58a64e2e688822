package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/internal/queue"
	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/pkg/models"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	return f.reply, f.err
}

// workerFunc adapts a function to the Worker interface.
type workerFunc func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome

func (f workerFunc) Run(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
	return f(ctx, task, report)
}

func newTestRunner(t *testing.T, registry *Registry, completer llm.Completer, timeout time.Duration) (*Runner, *store.Store, *queue.EventBroker) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	broker := queue.NewEventBroker()
	r := New(Config{
		Store:     s,
		Broker:    broker,
		Registry:  registry,
		Completer: completer,
		Timeout: func(models.WorkerType) time.Duration {
			return timeout
		},
	})
	return r, s, broker
}

func runningTask(t *testing.T, s *store.Store, id string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:              id,
		UserID:          "user-1",
		WorkerType:      models.WorkerResearch,
		TaskKind:        "summary",
		Status:          models.TaskStatusPending,
		InputParameters: map[string]string{"topic": "fermentation"},
		CreatedAt:       time.Now(),
	}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s.Transition(id, models.TaskStatusRunning, nil, ""); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	task.Status = models.TaskStatusRunning
	task.AttemptCount = 1
	return task
}

func TestExecutePanicBecomesFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			panic("nil map write")
		}))

	r, s, _ := newTestRunner(t, registry, nil, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeFailure {
		t.Fatalf("outcome kind = %s, want failure", outcome.Kind)
	}
	if !strings.Contains(outcome.Message, "worker fault") {
		t.Errorf("message = %q", outcome.Message)
	}
}

func TestExecuteUnregisteredWorkerType(t *testing.T) {
	r, s, _ := newTestRunner(t, NewRegistry(), nil, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeFailure {
		t.Errorf("outcome kind = %s, want failure", outcome.Kind)
	}
}

func TestExecuteUnavailableWorker(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterUnavailable(models.WorkerResearch, "no key configured")

	r, s, _ := newTestRunner(t, registry, nil, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeUnavailable {
		t.Fatalf("outcome kind = %s, want unavailable", outcome.Kind)
	}
	if outcome.Message != "no key configured" {
		t.Errorf("message = %q", outcome.Message)
	}
}

func TestExecuteTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			<-ctx.Done()
			return models.Success(nil)
		}))

	r, s, _ := newTestRunner(t, registry, nil, 50*time.Millisecond)
	task := runningTask(t, s, "t1")

	start := time.Now()
	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeFailure || outcome.Message != "timeout" {
		t.Fatalf("outcome = %+v, want timeout failure", outcome)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestProgressClampedAndMonotonic(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			report(150, "over")
			report(40, "stale")
			report(-5, "under")
			return models.Success(nil)
		}))

	r, s, broker := newTestRunner(t, registry, nil, 0)
	events, unsub := broker.Subscribe(100)
	defer unsub()

	task := runningTask(t, s, "t1")
	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}

	var percents []int
	for len(events) > 0 {
		event := <-events
		if event.Type == models.EventProgressed && event.Stage != "starting" {
			percents = append(percents, event.Percent)
		}
	}

	last := -1
	for _, p := range percents {
		if p < 0 || p > 100 {
			t.Errorf("percent %d out of range", p)
		}
		if p < last {
			t.Errorf("percent regressed: %v", percents)
		}
		last = p
	}
	// 150 clamps to 100; 40 and -5 are regressions and never surface.
	if len(percents) != 1 || percents[0] != 100 {
		t.Errorf("emitted percents = %v, want [100]", percents)
	}
}

func TestProgressMonotonicAcrossRetries(t *testing.T) {
	attempt := 0
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			attempt++
			if attempt == 1 {
				report(70, "deep in")
				return models.Failuref("transient")
			}
			// The retry starts over but its early reports must not
			// regress the observed percent.
			report(20, "starting over")
			report(90, "almost")
			return models.Success(nil)
		}))

	r, s, broker := newTestRunner(t, registry, nil, 0)
	events, unsub := broker.Subscribe(100)
	defer unsub()

	task := runningTask(t, s, "t1")
	if outcome := r.Execute(context.Background(), task); outcome.Kind != models.OutcomeFailure {
		t.Fatalf("first attempt outcome = %+v", outcome)
	}
	task.AttemptCount = 2
	if outcome := r.Execute(context.Background(), task); outcome.Kind != models.OutcomeSuccess {
		t.Fatalf("second attempt outcome = %+v", outcome)
	}

	var percents []int
	for len(events) > 0 {
		event := <-events
		if event.Type == models.EventProgressed && event.Stage != "starting" {
			percents = append(percents, event.Percent)
		}
	}

	last := -1
	for _, p := range percents {
		if p < last {
			t.Fatalf("percent regressed across retries: %v", percents)
		}
		last = p
	}
}

func TestSuccessGetsSummary(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			return models.Success(map[string]string{"findings": "lots"})
		}))

	completer := &fakeCompleter{reply: "All wrapped up."}
	r, s, _ := newTestRunner(t, registry, completer, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Payload["summary"] != "All wrapped up." {
		t.Errorf("summary = %q", outcome.Payload["summary"])
	}
}

func TestSummaryFallbackNeverFailsTask(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			return models.Success(nil)
		}))

	completer := &fakeCompleter{err: errors.New("api down")}
	r, s, _ := newTestRunner(t, registry, completer, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Kind != models.OutcomeSuccess {
		t.Fatalf("outcome = %+v, summary failure must not fail the task", outcome)
	}
	if outcome.Payload["summary"] != staticSummaries[models.WorkerResearch] {
		t.Errorf("summary = %q, want static fallback", outcome.Payload["summary"])
	}
}

func TestWorkerSummaryNotOverwritten(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			return models.Success(map[string]string{"summary": "mine"})
		}))

	completer := &fakeCompleter{reply: "generated"}
	r, s, _ := newTestRunner(t, registry, completer, 0)
	task := runningTask(t, s, "t1")

	outcome := r.Execute(context.Background(), task)
	if outcome.Payload["summary"] != "mine" {
		t.Errorf("summary = %q, worker-provided value must win", outcome.Payload["summary"])
	}
}

func TestAcknowledgeOnlyFirstAttempt(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
			return models.Failuref("transient")
		}))

	r, s, broker := newTestRunner(t, registry, &fakeCompleter{reply: "On it!"}, 0)
	events, unsub := broker.Subscribe(100)
	defer unsub()

	task := runningTask(t, s, "t1")
	r.Execute(context.Background(), task)
	task.AttemptCount = 2
	r.Execute(context.Background(), task)

	acks := 0
	for len(events) > 0 {
		event := <-events
		if event.Type == models.EventProgressed && event.Stage == "starting" {
			acks++
		}
	}
	if acks != 1 {
		t.Errorf("acknowledgments = %d, want 1 (first attempt only)", acks)
	}
}

func TestForgetClearsProgressFloor(t *testing.T) {
	var report ProgressFunc
	registry := NewRegistry()
	registry.Register(models.WorkerResearch, workerFunc(
		func(ctx context.Context, task *models.Task, rep ProgressFunc) models.Outcome {
			report = rep
			rep(80, "almost")
			return models.Failuref("broken")
		}))

	r, s, _ := newTestRunner(t, registry, nil, 0)
	task := runningTask(t, s, "t1")
	r.Execute(context.Background(), task)

	// While the task id is live, lower reports stay filtered.
	report(10, "late")
	got, _ := s.GetTask("t1")
	if got.ProgressPercent != 80 {
		t.Fatalf("progress = %d, want 80 before forget", got.ProgressPercent)
	}

	// After the pool declares the task terminal, its floor is released
	// and a reused id starts from zero again.
	r.Forget("t1")
	if _, live := r.lastPercent.Load("t1"); live {
		t.Error("progress floor retained after Forget")
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	worker := workerFunc(func(ctx context.Context, task *models.Task, report ProgressFunc) models.Outcome {
		return models.Success(nil)
	})
	if err := registry.Register(models.WorkerResearch, worker); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := registry.Register(models.WorkerResearch, worker); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if err := registry.Register(models.WorkerProspects, nil); err == nil {
		t.Error("expected error on nil worker")
	}
}
