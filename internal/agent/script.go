package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/exec"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// ScriptExecutor runs each task's description as a shell command through
// "sh -c". It serves pipelines whose tasks are commands rather than prompts,
// and exercises the scheduler without an agent CLI on the machine.
type ScriptExecutor struct {
	timeout time.Duration
	workDir string
	runner  exec.CommandRunner
}

// NewScriptExecutor creates a ScriptExecutor. A nil runner gets the real
// os/exec-backed one.
func NewScriptExecutor(timeout time.Duration, workDir string, runner exec.CommandRunner) *ScriptExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &ScriptExecutor{
		timeout: timeout,
		workDir: workDir,
		runner:  runner,
	}
}

// Execute runs the task description as a shell command. Exit status decides
// success; a non-zero exit or a blown deadline is a task failure with a nil
// error so the scheduler can retry it.
func (e *ScriptExecutor) Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now().UTC()
	run, err := e.runner.RunShell(runCtx, e.workDir, task.Description)
	finished := time.Now().UTC()

	result := &models.ExecutionResult{
		TaskID:     task.ID,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if run != nil {
		result.Output = string(run.Output)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("script timed out after %s", e.timeout)
			return result, nil
		}
		return nil, fmt.Errorf("run script: %w", err)
	}

	if run.ExitCode != 0 {
		result.Error = fmt.Sprintf("script exited with code %d: %s", run.ExitCode, tailOutput(run.Output))
		return result, nil
	}

	result.Success = true
	return result, nil
}

// Verify ScriptExecutor satisfies the orchestrator's executor contract.
var _ swarm.Executor = (*ScriptExecutor)(nil)
