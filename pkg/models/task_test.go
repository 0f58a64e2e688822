package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusRunning, TaskStatusAwaitingConfirmation,
		TaskStatusSucceeded, TaskStatusFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if TaskStatus("cancelled").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusPending, false},
		{TaskStatusRunning, false},
		{TaskStatusAwaitingConfirmation, false},
		{TaskStatusSucceeded, true},
		{TaskStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestTaskStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		legal    bool
	}{
		{TaskStatusPending, TaskStatusRunning, true},
		{TaskStatusPending, TaskStatusSucceeded, false},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusSucceeded, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusAwaitingConfirmation, true},
		{TaskStatusRunning, TaskStatusPending, false},
		{TaskStatusAwaitingConfirmation, TaskStatusRunning, true},
		{TaskStatusAwaitingConfirmation, TaskStatusFailed, true},
		{TaskStatusAwaitingConfirmation, TaskStatusSucceeded, false},
		{TaskStatusSucceeded, TaskStatusRunning, false},
		{TaskStatusSucceeded, TaskStatusFailed, false},
		{TaskStatusFailed, TaskStatusRunning, false},
		{TaskStatusFailed, TaskStatusSucceeded, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.legal {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.legal)
		}
	}
}

func TestTerminalStatesAreExclusive(t *testing.T) {
	// A terminal task permits no further transitions at all.
	all := []TaskStatus{
		TaskStatusPending, TaskStatusRunning, TaskStatusAwaitingConfirmation,
		TaskStatusSucceeded, TaskStatusFailed,
	}
	for _, terminal := range []TaskStatus{TaskStatusSucceeded, TaskStatusFailed} {
		for _, next := range all {
			if terminal.CanTransitionTo(next) {
				t.Errorf("terminal status %s permits transition to %s", terminal, next)
			}
		}
	}
}

func TestCloneParameters(t *testing.T) {
	task := &Task{InputParameters: map[string]string{"subject": "dentist"}}
	clone := task.CloneParameters()
	clone["subject"] = "changed"
	if task.InputParameters["subject"] != "dentist" {
		t.Error("CloneParameters did not copy the map")
	}

	var empty Task
	if got := empty.CloneParameters(); got == nil || len(got) != 0 {
		t.Errorf("CloneParameters on nil map = %v, want empty map", got)
	}
}

func TestWorkerTypeValid(t *testing.T) {
	for _, w := range []WorkerType{WorkerRouter, WorkerCommunication, WorkerResearch, WorkerProspects} {
		if !w.Valid() {
			t.Errorf("expected %q to be valid", w)
		}
	}
	if WorkerType("billing").Valid() {
		t.Error("expected unknown worker type to be invalid")
	}
}

func TestQueueWorkerTypesExcludesRouter(t *testing.T) {
	for _, w := range QueueWorkerTypes() {
		if w == WorkerRouter {
			t.Fatal("router must not own a queue")
		}
	}
	if len(QueueWorkerTypes()) != 3 {
		t.Errorf("expected 3 queue worker types, got %d", len(QueueWorkerTypes()))
	}
}

func TestConfirmationContextExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name    string
		cctx    ConfirmationContext
		expired bool
	}{
		{"no expiry", ConfirmationContext{}, false},
		{"future expiry", ConfirmationContext{ExpiresAt: &future}, false},
		{"past expiry", ConfirmationContext{ExpiresAt: &past}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cctx.Expired(now); got != tt.expired {
				t.Errorf("Expired() = %v, want %v", got, tt.expired)
			}
		})
	}
}
