package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound indicates a referenced task ID is absent from the store.
	ErrTaskNotFound = errors.New("task not found")
	// ErrCycleDetected indicates a dependency edge would create a cycle.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrVersionConflict indicates an optimistic-concurrency write lost a
	// race. The caller must re-fetch and retry.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition indicates a status change the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRetriesExhausted indicates a failed task has no retry attempts left.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// CircularDependencyError reports a rejected dependency edge. The edge is
// never persisted; the store is unchanged.
type CircularDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.TaskID, e.DependencyID)
}

// Is reports ErrCycleDetected so callers can match with errors.Is.
func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCycleDetected
}

// VersionConflictError reports a stale optimistic-concurrency write.
type VersionConflictError struct {
	TaskID   string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("task %s: version conflict: expected %d, store has %d", e.TaskID, e.Expected, e.Actual)
}

// Is reports ErrVersionConflict so callers can match with errors.Is.
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// InvalidStatusTransitionError reports a status change the task state
// machine forbids.
type InvalidStatusTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot transition from %s to %s", e.TaskID, e.From, e.To)
}

// Is reports ErrInvalidTransition so callers can match with errors.Is.
func (e *InvalidStatusTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ExecutionFailureError wraps an agent execution failure. It is recorded on
// the task and never crashes the dispatch loop.
type ExecutionFailureError struct {
	TaskID string
	Cause  error
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("task %s: execution failed: %v", e.TaskID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExecutionFailureError) Unwrap() error {
	return e.Cause
}
