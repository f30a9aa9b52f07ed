// Package agent runs tasks through an external coding-agent CLI.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/exec"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// Default execution settings.
const (
	// DefaultCommand is the agent CLI invoked for each task.
	DefaultCommand = "claude"
	// DefaultTimeout bounds a single execution when the task carries no
	// duration estimate.
	DefaultTimeout = 15 * time.Minute
	// minTaskTimeout is the floor for estimate-derived deadlines.
	minTaskTimeout = time.Minute
)

// Config holds the settings for a CLIExecutor.
type Config struct {
	// Command is the agent binary to invoke. Defaults to "claude".
	Command string
	// Args are arguments placed before the prompt (e.g. "-p").
	Args []string
	// Model pins a model for every task. Empty selects per task source.
	Model string
	// Timeout bounds executions for tasks without a duration estimate.
	Timeout time.Duration
	// WorkDir is the working directory for the agent process.
	WorkDir string
}

// CLIExecutor runs each task as a single invocation of a coding-agent CLI,
// passing the task as a prompt and reading the outcome from the exit status.
type CLIExecutor struct {
	command string
	args    []string
	model   string
	timeout time.Duration
	workDir string
	runner  exec.CommandRunner

	debugLog func(format string, args ...interface{})
}

// NewCLIExecutor creates a CLIExecutor with the given configuration.
// A nil runner gets the real os/exec-backed one.
func NewCLIExecutor(cfg Config, runner exec.CommandRunner) *CLIExecutor {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"-p"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &CLIExecutor{
		command:  cfg.Command,
		args:     cfg.Args,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		workDir:  cfg.WorkDir,
		runner:   runner,
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (e *CLIExecutor) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	}
}

// Execute runs the agent CLI for one task and reports the outcome.
//
// A non-zero exit or a blown per-task deadline is a task failure: it comes
// back in the result with a nil error, so the scheduler can retry it. The
// error return is reserved for the agent not running at all.
func (e *CLIExecutor) Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
	timeout := e.timeoutFor(task)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildPrompt(task)
	model := e.model
	if model == "" {
		model = SelectModel(task)
	}

	// Model flag first, prompt last.
	argv := make([]string, 0, len(e.args)+3)
	if model != "" {
		argv = append(argv, "--model", model)
	}
	argv = append(argv, e.args...)
	argv = append(argv, prompt)

	env := []string{"ABATHUR_TASK_ID=" + task.ID}

	e.debugLog("[agent.Execute] task %s: %s %s (timeout %s)", task.ID, e.command, strings.Join(argv[:len(argv)-1], " "), timeout)
	started := time.Now().UTC()
	run, err := e.runner.RunWithEnv(runCtx, e.workDir, env, e.command, argv...)
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
		// A blown per-task deadline while the run context is still live is
		// the task's own failure, not an executor outage.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Error = fmt.Sprintf("agent timed out after %s", timeout)
			return result, nil
		}
		return nil, fmt.Errorf("run agent command: %w", err)
	}

	if run.ExitCode != 0 {
		result.Error = fmt.Sprintf("agent exited with code %d: %s", run.ExitCode, tailOutput(run.Output))
		return result, nil
	}

	result.Success = true
	return result, nil
}

// timeoutFor returns the execution deadline for a task.
func (e *CLIExecutor) timeoutFor(task *models.Task) time.Duration {
	return taskTimeout(task, e.timeout)
}

// taskTimeout returns the execution deadline for a task. Tasks carrying a
// duration estimate get twice the estimate (with a one minute floor);
// everything else gets the fallback.
func taskTimeout(task *models.Task, fallback time.Duration) time.Duration {
	if task.EstimatedDuration != nil && *task.EstimatedDuration > 0 {
		d := 2 * *task.EstimatedDuration
		if d < minTaskTimeout {
			d = minTaskTimeout
		}
		return d
	}
	return fallback
}

// tailOutput returns the end of a command's output for error messages.
func tailOutput(output []byte) string {
	const maxTail = 400
	s := strings.TrimSpace(string(output))
	if len(s) > maxTail {
		s = "..." + s[len(s)-maxTail:]
	}
	return s
}

// Verify CLIExecutor satisfies the orchestrator's executor contract.
var _ swarm.Executor = (*CLIExecutor)(nil)
