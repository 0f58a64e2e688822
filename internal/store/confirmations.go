package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/harperlabs/concierge/pkg/models"
)

// CreateConfirmation persists a confirmation context. The (user_id,
// task_id) primary key enforces at most one open context per pair.
func (s *Store) CreateConfirmation(cctx *models.ConfirmationContext) error {
	answers, err := json.Marshal(cctx.SuggestedAnswers)
	if err != nil {
		return fmt.Errorf("marshal suggested answers: %w", err)
	}
	partial, err := json.Marshal(cctx.PartialState)
	if err != nil {
		return fmt.Errorf("marshal partial state: %w", err)
	}

	var expires any
	if cctx.ExpiresAt != nil {
		expires = formatTime(*cctx.ExpiresAt)
	}

	_, err = s.Exec(`
		INSERT INTO confirmations (user_id, task_id, pending_question,
			suggested_answers, partial_state, answer_key,
			follow_up_count, asked_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cctx.UserID, cctx.TaskID, cctx.PendingQuestion, string(answers),
		string(partial), cctx.AnswerKey, cctx.FollowUpCount,
		formatTime(cctx.AskedAt), expires)
	if err != nil {
		return fmt.Errorf("insert confirmation for task %s: %w", cctx.TaskID, err)
	}
	return nil
}

// OpenConfirmation returns the user's open confirmation context, oldest
// first when several tasks are suspended. Returns ErrNotFound when none
// is open.
func (s *Store) OpenConfirmation(userID string) (*models.ConfirmationContext, error) {
	row := s.QueryRow(`
		SELECT user_id, task_id, pending_question, suggested_answers,
			partial_state, answer_key, follow_up_count, asked_at, expires_at
		FROM confirmations WHERE user_id = ?
		ORDER BY asked_at ASC LIMIT 1
	`, userID)
	return scanConfirmation(row)
}

// GetConfirmation loads the context for a specific (user, task) pair.
func (s *Store) GetConfirmation(userID, taskID string) (*models.ConfirmationContext, error) {
	row := s.QueryRow(`
		SELECT user_id, task_id, pending_question, suggested_answers,
			partial_state, answer_key, follow_up_count, asked_at, expires_at
		FROM confirmations WHERE user_id = ? AND task_id = ?
	`, userID, taskID)
	return scanConfirmation(row)
}

// DeleteConfirmation removes a confirmation context.
func (s *Store) DeleteConfirmation(userID, taskID string) error {
	_, err := s.Exec(`DELETE FROM confirmations WHERE user_id = ? AND task_id = ?`, userID, taskID)
	if err != nil {
		return fmt.Errorf("delete confirmation for task %s: %w", taskID, err)
	}
	return nil
}

// IncrementFollowUp bumps the clarifying re-ask counter and returns the
// new value.
func (s *Store) IncrementFollowUp(userID, taskID string) (int, error) {
	if _, err := s.Exec(`
		UPDATE confirmations SET follow_up_count = follow_up_count + 1
		WHERE user_id = ? AND task_id = ?
	`, userID, taskID); err != nil {
		return 0, fmt.Errorf("increment follow-up for task %s: %w", taskID, err)
	}
	var count int
	err := s.QueryRow(`
		SELECT follow_up_count FROM confirmations WHERE user_id = ? AND task_id = ?
	`, userID, taskID).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read follow-up count for task %s: %w", taskID, err)
	}
	return count, nil
}

func scanConfirmation(row rowScanner) (*models.ConfirmationContext, error) {
	var cctx models.ConfirmationContext
	var answersJSON, partialJSON, askedAt string
	var expiresAt sql.NullString

	err := row.Scan(&cctx.UserID, &cctx.TaskID, &cctx.PendingQuestion,
		&answersJSON, &partialJSON, &cctx.AnswerKey, &cctx.FollowUpCount,
		&askedAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan confirmation: %w", err)
	}

	if err := json.Unmarshal([]byte(answersJSON), &cctx.SuggestedAnswers); err != nil {
		return nil, fmt.Errorf("unmarshal suggested answers: %w", err)
	}
	if err := json.Unmarshal([]byte(partialJSON), &cctx.PartialState); err != nil {
		return nil, fmt.Errorf("unmarshal partial state: %w", err)
	}

	asked, err := parseTime(askedAt)
	if err != nil {
		return nil, fmt.Errorf("parse asked_at: %w", err)
	}
	cctx.AskedAt = asked
	cctx.ExpiresAt = parseNullableTime(expiresAt)

	return &cctx, nil
}
