package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperlabs/concierge/internal/config"
	"github.com/harperlabs/concierge/internal/store"
	"github.com/harperlabs/concierge/pkg/models"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and task state",
	Long: `Display per-queue task counts and the user's recent tasks.

Reads the task database directly; no queues are started.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "for", "local", "User id to list recent tasks for")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No tasks yet. Run 'concierge' to start a session.")
		return nil
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	fmt.Println("Queues:")
	for _, workerType := range models.QueueWorkerTypes() {
		stats, err := st.Stats(workerType)
		if err != nil {
			return fmt.Errorf("stats for %s: %w", workerType, err)
		}
		fmt.Printf("  %-13s  pending %d  running %d  waiting %d  succeeded %d  failed %d\n",
			workerType, stats.Pending, stats.Running, stats.AwaitingConfirmation,
			stats.Succeeded, stats.Failed)
	}

	tasks, err := st.ListUserTasks(statusUser, 10)
	if err != nil {
		return fmt.Errorf("list tasks for %s: %w", statusUser, err)
	}
	if len(tasks) == 0 {
		return nil
	}

	fmt.Printf("\nRecent tasks for %s:\n", statusUser)
	for _, task := range tasks {
		fmt.Printf("  %s  %-13s %-10s %s", task.ID, task.WorkerType, task.TaskKind, colorStatus(task.Status))
		if task.Status == models.TaskStatusRunning {
			fmt.Printf(" (%d%% %s)", task.ProgressPercent, task.ProgressStage)
		}
		if task.Status == models.TaskStatusFailed && task.ErrorMessage != "" {
			fmt.Printf(" %s", task.ErrorMessage)
		}
		fmt.Println()
	}

	return nil
}

func colorStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusSucceeded:
		return color.GreenString(string(status))
	case models.TaskStatusFailed:
		return color.RedString(string(status))
	case models.TaskStatusRunning:
		return color.YellowString(string(status))
	case models.TaskStatusAwaitingConfirmation:
		return color.MagentaString(string(status))
	default:
		return string(status)
	}
}
