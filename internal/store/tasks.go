package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = `id, description, status, base_priority, calculated_priority,
	dependency_type, parallel_threshold, source, deadline, estimated_seconds,
	retry_count, max_retries, parent_task_id, spawned_by_task_id, version,
	submitted_at, started_at, completed_at, last_error`

// CreateTask inserts a new task and its dependency edges atomically.
func (db *DB) CreateTask(t *models.Task) error {
	if !t.Status.Valid() {
		return fmt.Errorf("create task %s: invalid status %q", t.ID, t.Status)
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = time.Now().UTC()
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, description, status, base_priority, calculated_priority,
				dependency_type, parallel_threshold, source, deadline, estimated_seconds,
				retry_count, max_retries, parent_task_id, spawned_by_task_id, version,
				submitted_at, started_at, completed_at, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Description, string(t.Status), t.BasePriority, t.CalculatedPriority,
			string(t.DependencyType), t.ParallelThreshold, string(t.Source),
			nullableTimeArg(t.Deadline), nullableSecondsArg(t.EstimatedDuration),
			t.RetryCount, t.MaxRetries, nullString(t.ParentTaskID), nullString(t.SpawnedByTaskID),
			t.Version, formatTime(t.SubmittedAt), nullableTimeArg(t.StartedAt),
			nullableTimeArg(t.CompletedAt), nullString(t.LastError))
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}

		for i, depID := range t.Dependencies {
			if _, err := tx.Exec(`
				INSERT INTO task_dependencies (task_id, depends_on_id, position)
				VALUES (?, ?, ?)
			`, t.ID, depID, i); err != nil {
				return fmt.Errorf("create task dependency %s -> %s: %w", t.ID, depID, err)
			}
		}
		return nil
	})
}

// GetTask retrieves a task by ID. Returns models.ErrTaskNotFound if the ID
// is absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get task %s: %w", id, models.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	deps, err := db.DependencyIDs(id)
	if err != nil {
		return nil, err
	}
	t.Dependencies = deps
	return t, nil
}

// UpdateTask writes a full task row using optimistic concurrency. The write
// succeeds only if the stored version matches t.Version; on success
// t.Version is incremented to match the store. Dependency edges are not
// touched; use InsertDependency / DeleteDependency for those.
func (db *DB) UpdateTask(t *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET description = ?, status = ?, base_priority = ?,
				calculated_priority = ?, dependency_type = ?, parallel_threshold = ?,
				source = ?, deadline = ?, estimated_seconds = ?, retry_count = ?,
				max_retries = ?, parent_task_id = ?, spawned_by_task_id = ?,
				started_at = ?, completed_at = ?, last_error = ?,
				version = version + 1
			WHERE id = ? AND version = ?
		`, t.Description, string(t.Status), t.BasePriority, t.CalculatedPriority,
			string(t.DependencyType), t.ParallelThreshold, string(t.Source),
			nullableTimeArg(t.Deadline), nullableSecondsArg(t.EstimatedDuration),
			t.RetryCount, t.MaxRetries, nullString(t.ParentTaskID), nullString(t.SpawnedByTaskID),
			nullableTimeArg(t.StartedAt), nullableTimeArg(t.CompletedAt), nullString(t.LastError),
			t.ID, t.Version)
		if err != nil {
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %s: rows affected: %w", t.ID, err)
		}
		if n == 0 {
			return staleWriteError(tx, t.ID, t.Version)
		}
		t.Version++
		return nil
	})
}

// UpdateStatus transitions a task to a new status using optimistic
// concurrency. The transition must be allowed by the task state machine.
// Dispatch and completion timestamps are maintained as side effects.
func (db *DB) UpdateStatus(id string, to models.TaskStatus, expectedVersion int64) error {
	if !to.Valid() {
		return fmt.Errorf("update status %s: invalid status %q", id, to)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		current, version, err := readStatus(tx, id)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return &models.VersionConflictError{TaskID: id, Expected: expectedVersion, Actual: version}
		}
		if !models.CanTransition(current, to) {
			return &models.InvalidStatusTransitionError{TaskID: id, From: current, To: to}
		}

		now := formatTime(time.Now().UTC())
		var res sql.Result
		switch {
		case to == models.TaskStatusRunning:
			res, err = tx.Exec(`
				UPDATE tasks SET status = ?, started_at = ?, version = version + 1
				WHERE id = ? AND version = ?
			`, string(to), now, id, expectedVersion)
		case to.IsTerminal():
			res, err = tx.Exec(`
				UPDATE tasks SET status = ?, completed_at = ?, version = version + 1
				WHERE id = ? AND version = ?
			`, string(to), now, id, expectedVersion)
		default:
			res, err = tx.Exec(`
				UPDATE tasks SET status = ?, version = version + 1
				WHERE id = ? AND version = ?
			`, string(to), id, expectedVersion)
		}
		if err != nil {
			return fmt.Errorf("update status %s: %w", id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update status %s: rows affected: %w", id, err)
		}
		if n == 0 {
			return staleWriteError(tx, id, expectedVersion)
		}
		return nil
	})
}

// UpdatePriority writes a recalculated priority using optimistic concurrency.
func (db *DB) UpdatePriority(id string, priority float64, expectedVersion int64) error {
	if priority < 0 || priority > 100 {
		return fmt.Errorf("update priority %s: %v out of range [0,100]", id, priority)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET calculated_priority = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, priority, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("update priority %s: %w", id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update priority %s: rows affected: %w", id, err)
		}
		if n == 0 {
			return staleWriteError(tx, id, expectedVersion)
		}
		return nil
	})
}

// FailTask marks a task failed and records the error message. The retry
// counter is not advanced here; RetryTask owns retry accounting.
func (db *DB) FailTask(id string, message string, expectedVersion int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		current, version, err := readStatus(tx, id)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return &models.VersionConflictError{TaskID: id, Expected: expectedVersion, Actual: version}
		}
		if !models.CanTransition(current, models.TaskStatusFailed) {
			return &models.InvalidStatusTransitionError{TaskID: id, From: current, To: models.TaskStatusFailed}
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status = ?, last_error = ?, completed_at = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, string(models.TaskStatusFailed), message, formatTime(time.Now().UTC()), id, expectedVersion)
		if err != nil {
			return fmt.Errorf("fail task %s: %w", id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("fail task %s: rows affected: %w", id, err)
		}
		if n == 0 {
			return staleWriteError(tx, id, expectedVersion)
		}
		return nil
	})
}

// RetryTask resets a failed task to pending and increments its retry count.
// Returns models.ErrRetriesExhausted if no attempts remain.
func (db *DB) RetryTask(id string) (*models.Task, error) {
	var out *models.Task
	err := db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTaskRow(row.Scan)
		if err == sql.ErrNoRows {
			return fmt.Errorf("retry task %s: %w", id, models.ErrTaskNotFound)
		}
		if err != nil {
			return fmt.Errorf("retry task %s: %w", id, err)
		}

		if t.Status != models.TaskStatusFailed && t.Status != models.TaskStatusValidationFailed {
			return &models.InvalidStatusTransitionError{TaskID: id, From: t.Status, To: models.TaskStatusPending}
		}
		if !t.CanRetry() {
			return fmt.Errorf("retry task %s: %w", id, models.ErrRetriesExhausted)
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status = ?, retry_count = retry_count + 1,
				started_at = NULL, completed_at = NULL, version = version + 1
			WHERE id = ? AND version = ?
		`, string(models.TaskStatusPending), id, t.Version)
		if err != nil {
			return fmt.Errorf("retry task %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("retry task %s: rows affected: %w", id, err)
		}
		if n == 0 {
			return staleWriteError(tx, id, t.Version)
		}

		t.Status = models.TaskStatusPending
		t.RetryCount++
		t.StartedAt = nil
		t.CompletedAt = nil
		t.Version++
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	deps, err := db.DependencyIDs(id)
	if err != nil {
		return nil, err
	}
	out.Dependencies = deps
	return out, nil
}

// GetNextReadyTask returns the highest-priority ready task, ties broken by
// submission time (oldest first) and then ID. Returns nil when no task is
// ready.
func (db *DB) GetNextReadyTask() (*models.Task, error) {
	row := db.QueryRow(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ?
		ORDER BY calculated_priority DESC, submitted_at ASC, id ASC
		LIMIT 1
	`, string(models.TaskStatusReady))

	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get next ready task: %w", err)
	}

	deps, err := db.DependencyIDs(t.ID)
	if err != nil {
		return nil, err
	}
	t.Dependencies = deps
	return t, nil
}

// ListTasks lists tasks ordered by submission time, optionally filtered by
// status. A limit of 0 means no limit. Dependency edges are loaded for each
// returned task.
func (db *DB) ListTasks(status *models.TaskStatus, limit int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY submitted_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		deps, err := db.DependencyIDs(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Dependencies = deps
	}
	return tasks, nil
}

// CountByStatus returns the number of tasks in each status.
func (db *DB) CountByStatus() (map[models.TaskStatus]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// readStatus reads a task's current status and version inside a transaction.
func readStatus(tx *sql.Tx, id string) (models.TaskStatus, int64, error) {
	var status string
	var version int64
	err := tx.QueryRow(`SELECT status, version FROM tasks WHERE id = ?`, id).Scan(&status, &version)
	if err == sql.ErrNoRows {
		return "", 0, fmt.Errorf("task %s: %w", id, models.ErrTaskNotFound)
	}
	if err != nil {
		return "", 0, fmt.Errorf("read status %s: %w", id, err)
	}
	return models.TaskStatus(status), version, nil
}

// staleWriteError disambiguates a zero-row CAS update: the task is either
// gone or its version moved.
func staleWriteError(tx *sql.Tx, id string, expected int64) error {
	var actual int64
	err := tx.QueryRow(`SELECT version FROM tasks WHERE id = ?`, id).Scan(&actual)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task %s: %w", id, models.ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("task %s: read version: %w", id, err)
	}
	return &models.VersionConflictError{TaskID: id, Expected: expected, Actual: actual}
}

// scanTaskRow scans one task row using the shared column order.
func scanTaskRow(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var status, depType, source, submittedAt string
	var deadline, startedAt, completedAt sql.NullString
	var estimatedSeconds sql.NullInt64
	var parentID, spawnedBy, lastError sql.NullString

	err := scan(&t.ID, &t.Description, &status, &t.BasePriority, &t.CalculatedPriority,
		&depType, &t.ParallelThreshold, &source, &deadline, &estimatedSeconds,
		&t.RetryCount, &t.MaxRetries, &parentID, &spawnedBy, &t.Version,
		&submittedAt, &startedAt, &completedAt, &lastError)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.DependencyType = models.DependencyType(depType)
	t.Source = models.TaskSource(source)
	t.SubmittedAt, _ = parseTime(submittedAt)
	t.Deadline = parseNullableTime(deadline)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	if estimatedSeconds.Valid {
		d := time.Duration(estimatedSeconds.Int64) * time.Second
		t.EstimatedDuration = &d
	}
	if parentID.Valid {
		t.ParentTaskID = parentID.String
	}
	if spawnedBy.Valid {
		t.SpawnedByTaskID = spawnedBy.String
	}
	if lastError.Valid {
		t.LastError = lastError.String
	}
	return &t, nil
}

// scanTasks scans task rows into a slice.
func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// nullableTimeArg converts an optional time into a SQL argument.
func nullableTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullableSecondsArg converts an optional duration into whole seconds.
func nullableSecondsArg(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(d.Seconds())
}

// nullString converts an empty string into NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
