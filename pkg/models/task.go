package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not scheduled.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusBlocked indicates the task is waiting on unmet dependencies.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusReady indicates all dependencies are satisfied and the task
	// is eligible for dispatch.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task has been dispatched to an agent.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusAwaitingChildren indicates the task spawned child tasks and
	// is waiting for them to finish.
	TaskStatusAwaitingChildren TaskStatus = "awaiting_children"
	// TaskStatusAwaitingValidation indicates the task's work is done but not
	// yet validated.
	TaskStatusAwaitingValidation TaskStatus = "awaiting_validation"
	// TaskStatusValidationRunning indicates validation is in progress.
	TaskStatusValidationRunning TaskStatus = "validation_running"
	// TaskStatusValidationFailed indicates validation rejected the work.
	TaskStatusValidationFailed TaskStatus = "validation_failed"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before or during
	// execution.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusBlocked, TaskStatusReady,
		TaskStatusRunning, TaskStatusAwaitingChildren,
		TaskStatusAwaitingValidation, TaskStatusValidationRunning,
		TaskStatusValidationFailed, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a final state. Terminal tasks are
// never dispatched and do not count toward blocking impact.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions defines the allowed state machine transitions.
// Map key is the source status, value is the set of allowed destinations.
var validTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskStatusPending: {
		TaskStatusBlocked:   true,
		TaskStatusReady:     true,
		TaskStatusCancelled: true,
	},
	TaskStatusBlocked: {
		TaskStatusPending:   true,
		TaskStatusReady:     true,
		TaskStatusCancelled: true,
	},
	TaskStatusReady: {
		TaskStatusBlocked:   true,
		TaskStatusRunning:   true,
		TaskStatusCancelled: true,
	},
	TaskStatusRunning: {
		TaskStatusAwaitingChildren:   true,
		TaskStatusAwaitingValidation: true,
		TaskStatusCompleted:          true,
		TaskStatusFailed:             true,
		TaskStatusCancelled:          true,
	},
	TaskStatusAwaitingChildren: {
		TaskStatusAwaitingValidation: true,
		TaskStatusCompleted:          true,
		TaskStatusFailed:             true,
		TaskStatusCancelled:          true,
	},
	TaskStatusAwaitingValidation: {
		TaskStatusValidationRunning: true,
		TaskStatusCancelled:         true,
	},
	TaskStatusValidationRunning: {
		TaskStatusCompleted:        true,
		TaskStatusValidationFailed: true,
		TaskStatusCancelled:        true,
	},
	TaskStatusValidationFailed: {
		TaskStatusPending:   true,
		TaskStatusFailed:    true,
		TaskStatusCancelled: true,
	},
	TaskStatusFailed: {
		TaskStatusPending: true, // retry
	},
	TaskStatusCompleted: {
		// terminal state - no transitions out
	},
	TaskStatusCancelled: {
		// terminal state - no transitions out
	},
}

// CanTransition returns true if moving from one status to another is allowed
// by the task state machine.
func CanTransition(from, to TaskStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TaskSource identifies who or what created a task. Provenance feeds into
// priority scoring: human-submitted work outranks agent-generated work.
type TaskSource string

const (
	// SourceHuman indicates the task was submitted by a person.
	SourceHuman TaskSource = "human"
	// SourceAgentRequirements indicates a requirements-analysis agent created the task.
	SourceAgentRequirements TaskSource = "agent_requirements"
	// SourceAgentPlanner indicates a planning agent created the task.
	SourceAgentPlanner TaskSource = "agent_planner"
	// SourceAgentImplementation indicates an implementation agent spawned the task.
	SourceAgentImplementation TaskSource = "agent_implementation"
)

// Valid returns true if the source is a known value.
func (s TaskSource) Valid() bool {
	switch s {
	case SourceHuman, SourceAgentRequirements, SourceAgentPlanner, SourceAgentImplementation:
		return true
	default:
		return false
	}
}

// DependencyType controls how a task's dependency set is satisfied.
type DependencyType string

const (
	// DependencySequential requires every dependency to be completed.
	DependencySequential DependencyType = "sequential"
	// DependencyParallel requires at least ParallelThreshold dependencies
	// to be completed.
	DependencyParallel DependencyType = "parallel"
)

// Valid returns true if the dependency type is a known value.
func (d DependencyType) Valid() bool {
	return d == DependencySequential || d == DependencyParallel
}

// Task represents a unit of schedulable work.
type Task struct {
	// ID is the unique identifier for this task. Immutable.
	ID string `json:"id"`
	// Description is what the task should accomplish.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// BasePriority is the human- or agent-supplied intent on a 0-10 scale.
	BasePriority int `json:"base_priority"`
	// CalculatedPriority is the derived score on a 0.0-100.0 scale.
	// Recomputed on demand, never hand-edited.
	CalculatedPriority float64 `json:"calculated_priority"`
	// Dependencies lists task IDs that must be satisfied before this task
	// may become ready. Order is preserved.
	Dependencies []string `json:"dependencies,omitempty"`
	// DependencyType controls whether all dependencies must complete
	// (sequential) or only ParallelThreshold of them (parallel).
	DependencyType DependencyType `json:"dependency_type"`
	// ParallelThreshold is the number of parallel dependencies that must be
	// completed before the task is ready. Zero or negative means all.
	ParallelThreshold int `json:"parallel_threshold,omitempty"`
	// Source records who created the task.
	Source TaskSource `json:"source"`
	// Deadline is when the task must be finished, if any.
	Deadline *time.Time `json:"deadline,omitempty"`
	// EstimatedDuration is how long the task is expected to take, if known.
	EstimatedDuration *time.Duration `json:"estimated_duration,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries bounds automatic retry attempts.
	MaxRetries int `json:"max_retries"`
	// ParentTaskID links a child task to its parent, if any. The parent does
	// not own the child's lifecycle; both are independent records.
	ParentTaskID string `json:"parent_task_id,omitempty"`
	// SpawnedByTaskID records which running task created this one, if any.
	SpawnedByTaskID string `json:"spawned_by_task_id,omitempty"`
	// Version increments on every write for optimistic concurrency.
	Version int64 `json:"version"`
	// SubmittedAt is when the task entered the store. Used to break
	// priority ties, oldest first.
	SubmittedAt time.Time `json:"submitted_at"`
	// StartedAt is when the task was dispatched, if it has been.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// LastError contains the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`
}

// DefaultBasePriority is assigned to tasks that do not specify one.
const DefaultBasePriority = 5

// DefaultMaxRetries bounds automatic retries for tasks that do not specify one.
const DefaultMaxRetries = 3

// NewTask creates a pending task with generated ID and defaults.
func NewTask(description string, source TaskSource) *Task {
	return &Task{
		ID:             "task-" + uuid.New().String()[:8],
		Description:    description,
		Status:         TaskStatusPending,
		BasePriority:   DefaultBasePriority,
		DependencyType: DependencySequential,
		Source:         source,
		MaxRetries:     DefaultMaxRetries,
		Version:        1,
		SubmittedAt:    time.Now().UTC(),
	}
}

// CanRetry returns true if the task has retry attempts remaining.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// RequiredDependencies returns how many of the task's dependencies must be
// completed before it is ready, honoring the dependency type and threshold.
func (t *Task) RequiredDependencies() int {
	n := len(t.Dependencies)
	if t.DependencyType != DependencyParallel {
		return n
	}
	if t.ParallelThreshold <= 0 || t.ParallelThreshold > n {
		return n
	}
	return t.ParallelThreshold
}

// Clone returns a deep copy of the task. The dependency slice is copied so
// callers can mutate the clone without affecting the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = make([]string, len(t.Dependencies))
		copy(c.Dependencies, t.Dependencies)
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.EstimatedDuration != nil {
		d := *t.EstimatedDuration
		c.EstimatedDuration = &d
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}
