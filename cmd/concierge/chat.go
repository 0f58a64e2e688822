package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/harperlabs/concierge/internal/config"
	"github.com/harperlabs/concierge/internal/orchestrator"
	"github.com/harperlabs/concierge/internal/signals"
	"github.com/harperlabs/concierge/pkg/models"
)

var (
	promptColor   = color.New(color.FgCyan, color.Bold)
	replyColor    = color.New(color.FgWhite)
	progressColor = color.New(color.FgYellow)
	successColor  = color.New(color.FgGreen)
	failureColor  = color.New(color.FgRed)
	questionColor = color.New(color.FgMagenta, color.Bold)
)

// runChat is the interactive session: a read loop on stdin with
// lifecycle events interleaved as they arrive.
func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	if err := orch.Start(); err != nil {
		return fmt.Errorf("recover persisted tasks: %w", err)
	}
	sessionID := uuid.New().String()[:8]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	watcher, err := signals.NewWatcher(cfg.Signals.Dir, orch, cancel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: control signals disabled: %v\n", err)
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	events, unsubscribe := orch.Events(100)
	defer unsubscribe()
	go renderEvents(ctx, events)

	fmt.Println("concierge is ready. Type a request, or 'quit' to exit.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		promptColor.Print("> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Println()
			return shutdown(orch)
		case line, ok = <-lines:
			if !ok {
				fmt.Println()
				return shutdown(orch)
			}
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			return shutdown(orch)
		}

		reply, err := orch.HandleUserMessage(ctx, chatUser, sessionID, text)
		if err != nil {
			failureColor.Printf("error: %v\n", err)
			continue
		}
		replyColor.Println(reply)
	}
}

// renderEvents prints lifecycle events as they stream in.
func renderEvents(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			printEvent(event)
		}
	}
}

func printEvent(event models.Event) {
	switch event.Type {
	case models.EventProgressed:
		if event.Message != "" {
			progressColor.Printf("\n[%s] %s\n", event.TaskID, event.Message)
		} else {
			progressColor.Printf("\n[%s] %d%% %s\n", event.TaskID, event.Percent, event.Stage)
		}
	case models.EventTerminal:
		if event.Status == models.TaskStatusSucceeded {
			summary := event.Payload["summary"]
			if summary == "" {
				summary = "done"
			}
			successColor.Printf("\n[%s] %s\n", event.TaskID, summary)
		} else {
			failureColor.Printf("\n[%s] %s\n", event.TaskID, event.Message)
		}
	case models.EventConfirmationRequested:
		questionColor.Printf("\n[%s] %s\n", event.TaskID, event.Message)
	case models.EventConfirmationResolved:
		progressColor.Printf("\n[%s] resuming with %q\n", event.TaskID, event.Message)
	}
}

func shutdown(orch *orchestrator.Orchestrator) error {
	fmt.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return orch.Shutdown(ctx)
}
