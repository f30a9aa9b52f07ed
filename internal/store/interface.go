// Package store provides SQLite-based task persistence for Abathur.
package store

import (
	"context"
	"io"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// TaskReader handles task read operations.
type TaskReader interface {
	GetTask(id string) (*models.Task, error)
	GetNextReadyTask() (*models.Task, error)
	ListTasks(status *models.TaskStatus, limit int) ([]models.Task, error)
	CountByStatus() (map[models.TaskStatus]int, error)
}

// TaskWriter handles task write operations. All writes use optimistic
// concurrency against the task version field.
type TaskWriter interface {
	CreateTask(t *models.Task) error
	UpdateTask(t *models.Task) error
	UpdateStatus(id string, to models.TaskStatus, expectedVersion int64) error
	UpdatePriority(id string, priority float64, expectedVersion int64) error
	FailTask(id string, message string, expectedVersion int64) error
	RetryTask(id string) (*models.Task, error)
	UpdateStatusRetry(ctx context.Context, id string, to models.TaskStatus, cfg RetryConfig) error
	UpdatePriorityRetry(ctx context.Context, id string, priority float64, cfg RetryConfig) error
}

// DependencyStore handles dependency edge operations.
type DependencyStore interface {
	DependencyIDs(taskID string) ([]string, error)
	DependentIDs(taskID string) ([]string, error)
	InsertDependency(taskID, dependencyID string, guard CycleGuard) error
	DeleteDependency(taskID, dependencyID string) error
	Edges() ([][2]string, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for task persistence.
// This interface allows the resolver, calculator, and orchestrator to work
// with any backend without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	TaskReader
	TaskWriter
	DependencyStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ TaskReader      = (*DB)(nil)
	_ TaskWriter      = (*DB)(nil)
	_ DependencyStore = (*DB)(nil)
)
