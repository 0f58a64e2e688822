package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harperlabs/concierge/internal/llm"
	"github.com/harperlabs/concierge/pkg/models"
)

// fakeCompleter returns a canned reply or error.
type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestClassifyKeywordRouting(t *testing.T) {
	r := New(nil, nil)
	ctx := context.Background()

	tests := []struct {
		message    string
		workerType models.WorkerType
		taskKind   string
		confidence float64
	}{
		{"remind me to call the dentist", models.WorkerCommunication, "reminder", 0.85},
		{"Don't let me forget the meeting", models.WorkerCommunication, "reminder", 0.85},
		{"send an email to Dana about the invoice", models.WorkerCommunication, "message", 0.80},
		{"find leads in the Boston area", models.WorkerProspects, "search", 0.80},
		{"research the history of fermentation", models.WorkerResearch, "summary", 0.75},
		{"what is a load balancer", models.WorkerResearch, "summary", 0.75},
	}
	for _, tt := range tests {
		got := r.Classify(ctx, tt.message, "user-1")
		if got.TargetWorkerType != tt.workerType || got.TaskKind != tt.taskKind {
			t.Errorf("Classify(%q) = %s/%s, want %s/%s",
				tt.message, got.TargetWorkerType, got.TaskKind, tt.workerType, tt.taskKind)
		}
		if got.Confidence != tt.confidence {
			t.Errorf("Classify(%q) confidence = %v, want %v", tt.message, got.Confidence, tt.confidence)
		}
		if got.OriginalMessage != tt.message {
			t.Errorf("original message not preserved for %q", tt.message)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	r := New(nil, nil)
	ctx := context.Background()

	msg := "remind me to stretch at 3pm"
	first := r.Classify(ctx, msg, "user-1")
	for i := 0; i < 5; i++ {
		again := r.Classify(ctx, msg, "user-1")
		if again.TargetWorkerType != first.TargetWorkerType ||
			again.TaskKind != first.TaskKind ||
			again.Confidence != first.Confidence {
			t.Fatalf("classification changed on repeat: %+v vs %+v", first, again)
		}
	}
}

func TestClassifyDeclarationOrderWins(t *testing.T) {
	// "remind me to look up..." contains both reminder and research
	// keywords; communication is declared first and must win.
	r := New(nil, nil)
	got := r.Classify(context.Background(), "remind me to look up flight prices", "user-1")
	if got.TargetWorkerType != models.WorkerCommunication || got.TaskKind != "reminder" {
		t.Errorf("got %s/%s, want communication/reminder", got.TargetWorkerType, got.TaskKind)
	}
}

func TestMatchUsesRulesOnly(t *testing.T) {
	// No completer: Match must never need one.
	r := New(nil, nil)

	wt, ok := r.Match("look up the history of tea")
	if !ok || wt != models.WorkerResearch {
		t.Errorf("Match = %s/%v, want research/true", wt, ok)
	}
	if _, ok := r.Match("9:00 AM"); ok {
		t.Error("plain answer matched a routing rule")
	}
	if _, ok := r.Match("hey there"); ok {
		t.Error("general chat matched a routing rule")
	}
}

func TestClassifyNoMatchRoutesToRouter(t *testing.T) {
	completer := &fakeCompleter{reply: "Hello! I can help with reminders."}
	r := New(nil, completer)

	got := r.Classify(context.Background(), "hey there", "user-1")
	if got.TargetWorkerType != models.WorkerRouter {
		t.Fatalf("worker type = %s, want router", got.TargetWorkerType)
	}
	if got.TaskKind != "general" || got.Confidence != 0.50 {
		t.Errorf("got kind=%q confidence=%v", got.TaskKind, got.Confidence)
	}
	if got.Reply != "Hello! I can help with reminders." {
		t.Errorf("reply = %q", got.Reply)
	}
}

func TestClassifyGeneralReplyFallsBack(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("api down")}
	r := New(nil, completer)

	got := r.Classify(context.Background(), "hey there", "user-1")
	if got.Reply != generalReplyFallback {
		t.Errorf("reply = %q, want static fallback", got.Reply)
	}
}

func TestExtractParametersFromCompletion(t *testing.T) {
	completer := &fakeCompleter{
		reply: `{"subject": "call the dentist", "time": "3pm", "date": "tomorrow"}`,
	}
	r := New(nil, completer)

	got := r.Classify(context.Background(), "remind me to call the dentist at 3pm tomorrow", "user-1")
	if got.ExtractedParameters["subject"] != "call the dentist" {
		t.Errorf("subject = %q", got.ExtractedParameters["subject"])
	}
	if got.ExtractedParameters["time"] != "15:00" {
		t.Errorf("time = %q, want normalized 15:00", got.ExtractedParameters["time"])
	}
	if got.ExtractedParameters["date"] != "tomorrow" {
		t.Errorf("date = %q", got.ExtractedParameters["date"])
	}
}

func TestExtractParametersSurroundingProse(t *testing.T) {
	completer := &fakeCompleter{
		reply: "Here you go:\n{\"topic\": \"fermentation\"}\nHope that helps!",
	}
	r := New(nil, completer)

	got := r.Classify(context.Background(), "research fermentation", "user-1")
	if got.ExtractedParameters["topic"] != "fermentation" {
		t.Errorf("topic = %q", got.ExtractedParameters["topic"])
	}
}

func TestExtractParametersDegradesToDefaults(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
	}{
		{"transport error", &fakeCompleter{err: errors.New("timeout")}},
		{"non-JSON reply", &fakeCompleter{reply: "I cannot do that"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil, tt.completer)
			msg := "remind me to call the dentist"
			got := r.Classify(context.Background(), msg, "user-1")

			// Defaults: the whole message as subject, no time.
			if got.ExtractedParameters["subject"] != msg {
				t.Errorf("subject = %q, want full message", got.ExtractedParameters["subject"])
			}
			if got.ExtractedParameters["time"] != "" {
				t.Errorf("time = %q, want empty", got.ExtractedParameters["time"])
			}
		})
	}
}

func TestExtractParametersUnparseableTimeDropped(t *testing.T) {
	completer := &fakeCompleter{
		reply: `{"subject": "standup", "time": "whenever", "date": ""}`,
	}
	r := New(nil, completer)

	got := r.Classify(context.Background(), "remind me about standup", "user-1")
	if got.ExtractedParameters["time"] != "" {
		t.Errorf("time = %q, want empty for unparseable value", got.ExtractedParameters["time"])
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
- worker_type: research
  task_kind: summary
  confidence: 0.9
  keywords: ["investigate"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if len(rules) != 1 || rules[0].WorkerType != models.WorkerResearch {
		t.Errorf("rules = %+v", rules)
	}

	// The file fully replaces the built-ins.
	r := New(rules, nil)
	got := r.Classify(context.Background(), "remind me to stretch", "user-1")
	if got.TargetWorkerType != models.WorkerRouter {
		t.Errorf("built-in rule still active after replacement: %s", got.TargetWorkerType)
	}
}

func TestLoadRulesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name, content string
	}{
		{"router target", `[{worker_type: router, task_kind: x, confidence: 0.5, keywords: ["a"]}]`},
		{"unknown type", `[{worker_type: billing, task_kind: x, confidence: 0.5, keywords: ["a"]}]`},
		{"no keywords", `[{worker_type: research, task_kind: x, confidence: 0.5, keywords: []}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadRules(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
