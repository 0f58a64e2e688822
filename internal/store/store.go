// Package store provides SQLite-backed persistence for tasks,
// confirmation contexts, and per-user quota counters. It is the single
// synchronization point between concurrently running executors; the
// transition-legality guard in Transition is the sole locking discipline.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change violates the
	// legality table. It indicates two executors raced on one task id and
	// is treated as a programming-contract violation by callers.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrQuotaExceeded is returned when a user's task quota is exhausted.
	ErrQuotaExceeded = errors.New("task quota exceeded")
)

// Store wraps an SQLite database with concierge-specific operations.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the path to the concierge database under the XDG
// data directory.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "concierge", "concierge.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Confirmations},
		{3, migrationV3Quotas},
		{4, migrationV4TaskSessions},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	worker_type TEXT NOT NULL,
	task_kind TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	progress_percent INTEGER NOT NULL DEFAULT 0,
	progress_stage TEXT NOT NULL DEFAULT '',
	input_parameters TEXT NOT NULL DEFAULT '{}',
	result TEXT,
	error_message TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	confirmation_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_worker_type ON tasks(worker_type);
`

const migrationV2Confirmations = `
CREATE TABLE IF NOT EXISTS confirmations (
	user_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	pending_question TEXT NOT NULL,
	suggested_answers TEXT NOT NULL DEFAULT '[]',
	partial_state TEXT NOT NULL DEFAULT '{}',
	answer_key TEXT NOT NULL DEFAULT 'answer',
	follow_up_count INTEGER NOT NULL DEFAULT 0,
	asked_at DATETIME NOT NULL,
	expires_at DATETIME,
	PRIMARY KEY (user_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_confirmations_user_id ON confirmations(user_id);
`

const migrationV3Quotas = `
CREATE TABLE IF NOT EXISTS quotas (
	user_id TEXT NOT NULL,
	window_start DATETIME NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, window_start)
);
`

const migrationV4TaskSessions = `
ALTER TABLE tasks ADD COLUMN session_id TEXT NOT NULL DEFAULT '';
`

// Exec executes a query that doesn't return rows.
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.QueryRow(query, args...)
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(str string) (time.Time, error) {
	return time.Parse(time.RFC3339, str)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(str sql.NullString) *time.Time {
	if !str.Valid {
		return nil
	}
	t, err := parseTime(str.String)
	if err != nil {
		return nil
	}
	return &t
}
