package swarm

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of swarm event.
type EventType string

const (
	// EventSwarmStarted indicates the dispatch loop has started.
	EventSwarmStarted EventType = "swarm_started"
	// EventSwarmStopped indicates the dispatch loop has exited and all
	// in-flight executions have settled.
	EventSwarmStopped EventType = "swarm_stopped"
	// EventTaskDispatched indicates a task was claimed and handed to the executor.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task execution finished successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task execution failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates a task was cancelled before or during execution.
	EventTaskCancelled EventType = "task_cancelled"
	// EventTaskRetried indicates a failed task was requeued for another attempt.
	EventTaskRetried EventType = "task_retried"
	// EventTaskReady indicates a task's dependencies resolved and it became ready.
	EventTaskReady EventType = "task_ready"
	// EventRetriesExhausted indicates a task failed with no retry budget left.
	EventRetriesExhausted EventType = "retries_exhausted"
	// EventClaimConflict indicates a dispatch claim lost an optimistic
	// concurrency race and the task was left for another claimant.
	EventClaimConflict EventType = "claim_conflict"
	// EventLimitReached indicates the completion limit was hit and the loop
	// stopped admitting new work.
	EventLimitReached EventType = "limit_reached"
	// EventAgentError indicates the executor itself broke while running a
	// task, as opposed to the task's work failing.
	EventAgentError EventType = "agent_error"
)

// Event represents an event emitted by the swarm orchestrator.
// These events are used to update the dashboard and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// CompletedCount is the running total of settled executions.
	CompletedCount int
	// Attempt is the retry attempt number, for retry events.
	Attempt int
}

// Emitter handles event emission for the swarm orchestrator.
// It provides a simple, thread-safe way to emit events to subscribers.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates a new Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full the
// event is dropped rather than blocking the dispatch loop.
func (e *Emitter) Emit(event Event) {
	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[swarm] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (e.g., the dashboard) to receive updates.
func (e *Emitter) Events() <-chan Event {
	return e.events
}
