package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/api"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// apiSystemPrompt frames the one-shot completion for queue work.
const apiSystemPrompt = "You are a worker completing one task from an automated work queue. " +
	"Do the work described in the task, then report what was done."

// Completer is the slice of the API client the executor needs.
// Satisfied by api.Client.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt, prompt string, maxTokens int64) (string, error)
}

// APIExecutor runs each task as a single Anthropic messages call instead of
// spawning an agent CLI. Useful where no CLI is installed, and on Bedrock.
type APIExecutor struct {
	client    Completer
	model     string // pins a model for every task; empty selects per source
	timeout   time.Duration
	maxTokens int64
}

// NewAPIExecutor creates an APIExecutor backed by the given client.
func NewAPIExecutor(client Completer, model string, timeout time.Duration) *APIExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIExecutor{
		client:  client,
		model:   model,
		timeout: timeout,
	}
}

// Execute sends the task prompt to the API and reports the outcome. An API
// transport error comes back as an error; an empty completion is a task
// failure with a nil error so the scheduler can retry it.
func (e *APIExecutor) Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
	timeout := taskTimeout(task, e.timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := e.model
	if model == "" {
		model = SelectModel(task)
	}

	started := time.Now().UTC()
	output, err := e.client.Complete(runCtx, model, apiSystemPrompt, buildPrompt(task), e.maxTokens)
	finished := time.Now().UTC()

	result := &models.ExecutionResult{
		TaskID:     task.ID,
		Output:     output,
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("API call timed out after %s", timeout)
			return result, nil
		}
		return nil, fmt.Errorf("execute via API: %w", err)
	}

	if output == "" {
		result.Error = "API returned an empty completion"
		return result, nil
	}

	result.Success = true
	return result, nil
}

// Verify APIExecutor satisfies the orchestrator's executor contract.
var (
	_ swarm.Executor = (*APIExecutor)(nil)
	_ Completer      = (*api.Client)(nil)
)
