package store

import (
	"database/sql"
	"fmt"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// CycleGuard checks whether adding a dependency edge would close a cycle.
// The resolver implements this; the store only needs the one method.
type CycleGuard interface {
	DetectCycle(taskID, dependencyID string) (bool, error)
}

// DependencyIDs returns the IDs a task depends on, in declaration order.
func (db *DB) DependencyIDs(taskID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT depends_on_id FROM task_dependencies
		WHERE task_id = ? ORDER BY position ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("dependencies of %s: %w", taskID, err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// DependentIDs returns the IDs of tasks that depend on the given task.
// Backed by the reverse index, so cost is proportional to the number of
// dependents rather than the number of tasks.
func (db *DB) DependentIDs(taskID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT task_id FROM task_dependencies
		WHERE depends_on_id = ? ORDER BY task_id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("dependents of %s: %w", taskID, err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// InsertDependency adds a dependency edge after verifying it would not
// create a cycle. A rejected edge leaves the store unchanged. Inserting an
// edge that already exists is a no-op.
func (db *DB) InsertDependency(taskID, dependencyID string, guard CycleGuard) error {
	if taskID == dependencyID {
		return &models.CircularDependencyError{TaskID: taskID, DependencyID: dependencyID}
	}
	if guard != nil {
		cyclic, err := guard.DetectCycle(taskID, dependencyID)
		if err != nil {
			return fmt.Errorf("check dependency cycle %s -> %s: %w", taskID, dependencyID, err)
		}
		if cyclic {
			return &models.CircularDependencyError{TaskID: taskID, DependencyID: dependencyID}
		}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		for _, id := range []string{taskID, dependencyID} {
			var one int
			err := tx.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
			if err == sql.ErrNoRows {
				return fmt.Errorf("task %s: %w", id, models.ErrTaskNotFound)
			}
			if err != nil {
				return fmt.Errorf("check task %s: %w", id, err)
			}
		}

		var next int
		if err := tx.QueryRow(`
			SELECT COALESCE(MAX(position) + 1, 0) FROM task_dependencies WHERE task_id = ?
		`, taskID).Scan(&next); err != nil {
			return fmt.Errorf("next dependency position for %s: %w", taskID, err)
		}

		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id, position)
			VALUES (?, ?, ?)
		`, taskID, dependencyID, next); err != nil {
			return fmt.Errorf("insert dependency %s -> %s: %w", taskID, dependencyID, err)
		}
		return nil
	})
}

// DeleteDependency removes a dependency edge. Removing an absent edge is a
// no-op.
func (db *DB) DeleteDependency(taskID, dependencyID string) error {
	_, err := db.Exec(`
		DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_id = ?
	`, taskID, dependencyID)
	if err != nil {
		return fmt.Errorf("delete dependency %s -> %s: %w", taskID, dependencyID, err)
	}
	return nil
}

// Edges returns every dependency edge as (task_id, depends_on_id) pairs.
// The resolver uses this to build its in-memory index in one query.
func (db *DB) Edges() ([][2]string, error) {
	rows, err := db.Query(`
		SELECT task_id, depends_on_id FROM task_dependencies
		ORDER BY task_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load dependency edges: %w", err)
	}
	defer rows.Close()

	var edges [][2]string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan dependency edge: %w", err)
		}
		edges = append(edges, [2]string{from, to})
	}
	return edges, rows.Err()
}

// scanIDs scans a single-column result set of task IDs.
func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
