package models

import "time"

// ExecutionResult captures the single outcome of one agent execution.
type ExecutionResult struct {
	// TaskID identifies the task that was executed.
	TaskID string `json:"task_id"`
	// Success is true if the agent completed the task.
	Success bool `json:"success"`
	// Output is the agent's final output, if any.
	Output string `json:"output,omitempty"`
	// Error contains the failure message if the execution failed.
	Error string `json:"error,omitempty"`
	// Cancelled is true if the execution was cancelled before finishing.
	Cancelled bool `json:"cancelled,omitempty"`
	// StartedAt is when the execution began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the execution produced its outcome.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the execution ran.
func (r *ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
