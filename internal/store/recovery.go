package store

import (
	"fmt"

	"github.com/harperlabs/concierge/pkg/models"
)

// ResetInterrupted moves tasks left in running back to pending. A
// running row with no live executor means the previous process died
// mid-task; this runs once at startup, before any admission loop, so
// it bypasses the transition guard deliberately. Attempt counts are
// preserved so an interrupted task keeps its retry budget.
func (s *Store) ResetInterrupted() (int, error) {
	res, err := s.Exec(`
		UPDATE tasks SET status = 'pending', progress_stage = ''
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset interrupted tasks: rows affected: %w", err)
	}
	return int(n), nil
}

// ListPending returns all pending tasks in creation order, for
// re-admission after a restart.
func (s *Store) ListPending() ([]*models.Task, error) {
	rows, err := s.Query(`
		SELECT id, user_id, session_id, worker_type, task_kind, status,
			progress_percent, progress_stage, input_parameters,
			result, error_message, attempt_count, confirmation_count,
			created_at, completed_at
		FROM tasks WHERE status = 'pending'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
