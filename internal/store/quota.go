package store

import (
	"fmt"
	"time"
)

// ConsumeQuota atomically claims one slot of the user's task quota for
// the window containing now. The compare happens inside the UPDATE, so
// two concurrent tasks from the same user cannot both pass a nearly-full
// quota check. Returns ErrQuotaExceeded when the window is full.
func (s *Store) ConsumeQuota(userID string, window time.Duration, limit int) error {
	if limit <= 0 {
		return nil
	}

	windowStart := time.Now().UTC().Truncate(window)
	start := formatTime(windowStart)

	res, err := s.Exec(`
		INSERT INTO quotas (user_id, window_start, count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, window_start)
		DO UPDATE SET count = count + 1 WHERE count < ?
	`, userID, start, limit)
	if err != nil {
		return fmt.Errorf("consume quota for user %s: %w", userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume quota for user %s: rows affected: %w", userID, err)
	}
	if n == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// QuotaUsed returns the number of quota slots consumed in the window
// containing now.
func (s *Store) QuotaUsed(userID string, window time.Duration) (int, error) {
	windowStart := time.Now().UTC().Truncate(window)

	var count int
	err := s.QueryRow(`
		SELECT COALESCE(MAX(count), 0) FROM quotas
		WHERE user_id = ? AND window_start = ?
	`, userID, formatTime(windowStart)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read quota for user %s: %w", userID, err)
	}
	return count, nil
}

// PurgeOldQuotas deletes quota windows older than the given age.
// Returns the number of rows deleted.
func (s *Store) PurgeOldQuotas(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	res, err := s.Exec(`DELETE FROM quotas WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old quotas: %w", err)
	}
	return res.RowsAffected()
}
