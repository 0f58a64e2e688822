package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harperlabs/concierge/pkg/models"
)

// CreateTask persists a new task record. The task must already carry an
// ID; the store does not generate identifiers.
func (s *Store) CreateTask(task *models.Task) error {
	params, err := json.Marshal(task.InputParameters)
	if err != nil {
		return fmt.Errorf("marshal input parameters: %w", err)
	}

	_, err = s.Exec(`
		INSERT INTO tasks (id, user_id, session_id, worker_type, task_kind,
			status, progress_percent, progress_stage, input_parameters,
			attempt_count, confirmation_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.UserID, task.SessionID, string(task.WorkerType),
		task.TaskKind, string(task.Status), task.ProgressPercent,
		task.ProgressStage, string(params), task.AttemptCount,
		task.ConfirmationCount, formatTime(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask loads a task by id. Returns ErrNotFound if no record exists.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.QueryRow(`
		SELECT id, user_id, session_id, worker_type, task_kind, status,
			progress_percent, progress_stage, input_parameters,
			result, error_message, attempt_count, confirmation_count,
			created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListUserTasks returns the user's tasks, most recent first.
func (s *Store) ListUserTasks(userID string, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`
		SELECT id, user_id, session_id, worker_type, task_kind, status,
			progress_percent, progress_stage, input_parameters,
			result, error_message, attempt_count, confirmation_count,
			created_at, completed_at
		FROM tasks WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks for user %s: %w", userID, err)
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

// UpdateProgress records a progress report for a running task. Percent
// is clamped to [0,100] and never regresses; stale reports are ignored.
func (s *Store) UpdateProgress(id string, percent int, stage string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	// MAX() keeps the stored percent monotonic even if reports arrive
	// out of order.
	res, err := s.Exec(`
		UPDATE tasks
		SET progress_percent = MAX(progress_percent, ?), progress_stage = ?
		WHERE id = ? AND status = 'running'
	`, percent, stage, id)
	if err != nil {
		return fmt.Errorf("update progress for task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing task from a task that isn't running.
		var current string
		scanErr := s.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
		if scanErr == sql.ErrNoRows {
			return fmt.Errorf("update progress for task %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("update progress for task %s in status %q: %w", id, current, ErrInvalidTransition)
	}
	return nil
}

// UpdateParameters replaces the task's input parameters. Used only by
// the confirmation resume path to merge the answered value.
func (s *Store) UpdateParameters(id string, params map[string]string) error {
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	res, err := s.Exec(`UPDATE tasks SET input_parameters = ? WHERE id = ?`, string(encoded), id)
	if err != nil {
		return fmt.Errorf("update parameters for task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update parameters for task %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementAttempt bumps the task's attempt counter and returns the new
// value.
func (s *Store) IncrementAttempt(id string) (int, error) {
	if _, err := s.Exec(`UPDATE tasks SET attempt_count = attempt_count + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("increment attempt for task %s: %w", id, err)
	}
	var count int
	if err := s.QueryRow(`SELECT attempt_count FROM tasks WHERE id = ?`, id).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read attempt count for task %s: %w", id, err)
	}
	return count, nil
}

// IncrementConfirmation bumps the task's confirmation counter and
// returns the new value.
func (s *Store) IncrementConfirmation(id string) (int, error) {
	if _, err := s.Exec(`UPDATE tasks SET confirmation_count = confirmation_count + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("increment confirmation for task %s: %w", id, err)
	}
	var count int
	if err := s.QueryRow(`SELECT confirmation_count FROM tasks WHERE id = ?`, id).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read confirmation count for task %s: %w", id, err)
	}
	return count, nil
}

// legalFrom maps each target status to the statuses it may be entered
// from. This is the transition-legality table; it guards the
// single-writer invariant when two executors race on one task id.
var legalFrom = map[models.TaskStatus][]string{
	models.TaskStatusRunning:              {"pending", "awaiting_confirmation"},
	models.TaskStatusSucceeded:            {"running"},
	models.TaskStatusFailed:               {"pending", "running", "awaiting_confirmation"},
	models.TaskStatusAwaitingConfirmation: {"running"},
}

// Transition moves a task to newStatus, enforcing the legality table in
// a single guarded UPDATE so racing executors cannot both win. For
// terminal statuses exactly one of result / errMsg must be provided:
// result for succeeded, errMsg for failed. Returns ErrInvalidTransition
// when the task exists but its current status does not permit the move.
func (s *Store) Transition(id string, newStatus models.TaskStatus, result map[string]string, errMsg string) error {
	from, ok := legalFrom[newStatus]
	if !ok {
		return fmt.Errorf("transition task %s to %q: %w", id, newStatus, ErrInvalidTransition)
	}

	placeholders := ""
	args := []any{}
	for i, status := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, status)
	}

	var res sql.Result
	var err error
	switch newStatus {
	case models.TaskStatusSucceeded:
		if result == nil {
			result = map[string]string{}
		}
		encoded, merr := json.Marshal(result)
		if merr != nil {
			return fmt.Errorf("marshal result: %w", merr)
		}
		query := `UPDATE tasks SET status = ?, result = ?, error_message = NULL,
			progress_percent = 100, completed_at = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		res, err = s.Exec(query, append([]any{string(newStatus), string(encoded),
			formatTime(time.Now()), id}, args...)...)
	case models.TaskStatusFailed:
		query := `UPDATE tasks SET status = ?, error_message = ?, result = NULL,
			completed_at = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		res, err = s.Exec(query, append([]any{string(newStatus), errMsg,
			formatTime(time.Now()), id}, args...)...)
	default:
		query := `UPDATE tasks SET status = ?
			WHERE id = ? AND status IN (` + placeholders + `)`
		res, err = s.Exec(query, append([]any{string(newStatus), id}, args...)...)
	}
	if err != nil {
		return fmt.Errorf("transition task %s to %q: %w", id, newStatus, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition task %s: rows affected: %w", id, err)
	}
	if n == 0 {
		// Distinguish a missing task from an illegal move.
		var current string
		scanErr := s.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
		if scanErr == sql.ErrNoRows {
			return fmt.Errorf("transition task %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("transition task %s from %q to %q: %w", id, current, newStatus, ErrInvalidTransition)
	}
	return nil
}

// Stats aggregates per-status counts for one worker type.
func (s *Store) Stats(workerType models.WorkerType) (models.QueueStats, error) {
	stats := models.QueueStats{WorkerType: workerType}

	rows, err := s.Query(`
		SELECT status, COUNT(*) FROM tasks WHERE worker_type = ? GROUP BY status
	`, string(workerType))
	if err != nil {
		return stats, fmt.Errorf("stats for %s: %w", workerType, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats row: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskStatusPending:
			stats.Pending = count
		case models.TaskStatusRunning:
			stats.Running = count
		case models.TaskStatusAwaitingConfirmation:
			stats.AwaitingConfirmation = count
		case models.TaskStatusSucceeded:
			stats.Succeeded = count
		case models.TaskStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var workerType, status, paramsJSON, createdAt string
	var result, errorMessage, completedAt sql.NullString

	err := row.Scan(&task.ID, &task.UserID, &task.SessionID, &workerType,
		&task.TaskKind, &status, &task.ProgressPercent, &task.ProgressStage,
		&paramsJSON, &result, &errorMessage, &task.AttemptCount,
		&task.ConfirmationCount, &createdAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.WorkerType = models.WorkerType(workerType)
	task.Status = models.TaskStatus(status)

	if err := json.Unmarshal([]byte(paramsJSON), &task.InputParameters); err != nil {
		return nil, fmt.Errorf("unmarshal input parameters for task %s: %w", task.ID, err)
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &task.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result for task %s: %w", task.ID, err)
		}
	}
	if errorMessage.Valid {
		task.ErrorMessage = errorMessage.String
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for task %s: %w", task.ID, err)
	}
	task.CreatedAt = created
	task.CompletedAt = parseNullableTime(completedAt)

	return &task, nil
}
