// Package audit records noteworthy scheduler events in a dedicated SQLite
// database. Audit writes are best-effort: callers log failures and move on,
// so the dispatch path never blocks on the trail.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Kind labels an audit event.
type Kind string

const (
	// KindCascadeCancel records a cancellation that cascaded to dependents.
	KindCascadeCancel Kind = "cascade_cancel"
	// KindRetriesExhausted records a task failing past its retry budget.
	KindRetriesExhausted Kind = "retries_exhausted"
	// KindVersionConflict records a write lost to optimistic concurrency.
	KindVersionConflict Kind = "version_conflict"
	// KindBreakerOpen records the executor circuit breaker opening.
	KindBreakerOpen Kind = "breaker_open"
)

// Event is one audit trail entry.
type Event struct {
	ID         string
	Kind       Kind
	TaskID     string
	Detail     string
	RecordedAt time.Time
}

// Store manages the audit trail. It lives in its own database file so audit
// growth never contends with task state.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the audit database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// Create table if not exists
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			task_id TEXT,
			detail TEXT,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_kind
			ON audit_events(kind, recorded_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends an audit event.
func (s *Store) Record(kind Kind, taskID, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, kind, task_id, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), string(kind), taskID, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// List returns audit events, newest first. An empty kind matches all kinds;
// limit <= 0 means no limit.
func (s *Store) List(kind Kind, limit int) ([]Event, error) {
	query := `
		SELECT id, kind, task_id, detail, recorded_at FROM audit_events`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY recorded_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var taskID, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &taskID, &detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.TaskID = taskID.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByKind returns how many events exist per kind.
func (s *Store) CountByKind() (map[Kind]int, error) {
	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM audit_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
