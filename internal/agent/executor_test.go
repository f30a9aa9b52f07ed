package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/exec"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// fakeRunner implements exec.CommandRunner with scripted outcomes.
type fakeRunner struct {
	// Captured from the last call.
	name string
	args []string
	env  []string

	// Scripted outcome.
	result   *exec.Result
	err      error
	blockCtx bool // block until the context is done, then return its error
}

func (f *fakeRunner) Run(ctx context.Context, workDir string, name string, args ...string) (*exec.Result, error) {
	return f.RunWithEnv(ctx, workDir, nil, name, args...)
}

func (f *fakeRunner) RunWithEnv(ctx context.Context, workDir string, env []string, name string, args ...string) (*exec.Result, error) {
	f.name = name
	f.args = args
	f.env = env
	if f.blockCtx {
		<-ctx.Done()
		return &exec.Result{Output: []byte("partial output")}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeRunner) RunShell(ctx context.Context, workDir string, command string) (*exec.Result, error) {
	return f.RunWithEnv(ctx, workDir, nil, "sh", "-c", command)
}

func testTask(id, description string) *models.Task {
	task := models.NewTask(description, models.SourceHuman)
	task.ID = id
	return task
}

func TestCLIExecutor_Success(t *testing.T) {
	runner := &fakeRunner{result: &exec.Result{Output: []byte("all done")}}
	e := NewCLIExecutor(Config{}, runner)

	task := testTask("task-abc", "write the report")
	result, err := e.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !result.Success {
		t.Errorf("expected success, got failure: %s", result.Error)
	}
	if result.Output != "all done" {
		t.Errorf("expected output 'all done', got %q", result.Output)
	}
	if result.TaskID != "task-abc" {
		t.Errorf("expected task ID task-abc, got %s", result.TaskID)
	}

	if runner.name != DefaultCommand {
		t.Errorf("expected command %q, got %q", DefaultCommand, runner.name)
	}
	// Prompt goes last and carries the description.
	last := runner.args[len(runner.args)-1]
	if !strings.Contains(last, "write the report") {
		t.Errorf("expected prompt as final argument, got %q", last)
	}
	if !strings.Contains(last, "task-abc") {
		t.Errorf("expected task ID in prompt, got %q", last)
	}

	foundEnv := false
	for _, kv := range runner.env {
		if kv == "ABATHUR_TASK_ID=task-abc" {
			foundEnv = true
		}
	}
	if !foundEnv {
		t.Errorf("expected ABATHUR_TASK_ID in env, got %v", runner.env)
	}
}

func TestCLIExecutor_ModelFlag(t *testing.T) {
	t.Run("selected per source", func(t *testing.T) {
		runner := &fakeRunner{result: &exec.Result{}}
		e := NewCLIExecutor(Config{}, runner)

		task := testTask("task-abc", "write the report")
		task.Source = models.SourceAgentRequirements
		if _, err := e.Execute(context.Background(), task); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if len(runner.args) < 2 || runner.args[0] != "--model" || runner.args[1] != ModelOpus {
			t.Errorf("expected --model %s first, got %v", ModelOpus, runner.args[:2])
		}
	})

	t.Run("pinned by config", func(t *testing.T) {
		runner := &fakeRunner{result: &exec.Result{}}
		e := NewCLIExecutor(Config{Model: "my-pinned-model"}, runner)

		task := testTask("task-abc", "complex architecture work")
		if _, err := e.Execute(context.Background(), task); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if runner.args[1] != "my-pinned-model" {
			t.Errorf("expected pinned model, got %s", runner.args[1])
		}
	})
}

func TestCLIExecutor_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{result: &exec.Result{
		Output:   []byte("something went wrong"),
		ExitCode: 2,
	}}
	e := NewCLIExecutor(Config{}, runner)

	result, err := e.Execute(context.Background(), testTask("task-abc", "do work"))
	if err != nil {
		t.Fatalf("expected nil error for task failure, got %v", err)
	}

	if result.Success {
		t.Error("expected failure for non-zero exit")
	}
	if !strings.Contains(result.Error, "code 2") {
		t.Errorf("expected exit code in error, got %q", result.Error)
	}
	if !strings.Contains(result.Error, "something went wrong") {
		t.Errorf("expected output tail in error, got %q", result.Error)
	}
}

func TestCLIExecutor_Timeout(t *testing.T) {
	runner := &fakeRunner{blockCtx: true}
	e := NewCLIExecutor(Config{Timeout: 30 * time.Millisecond}, runner)

	result, err := e.Execute(context.Background(), testTask("task-abc", "do work"))
	if err != nil {
		t.Fatalf("expected timeout to settle as task failure, got error %v", err)
	}

	if result.Success {
		t.Error("expected failure after timeout")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("expected timeout message, got %q", result.Error)
	}
}

func TestCLIExecutor_ParentCancellation(t *testing.T) {
	runner := &fakeRunner{blockCtx: true}
	e := NewCLIExecutor(Config{}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, testTask("task-abc", "do work"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled to propagate, got %v", err)
	}
}

func TestCLIExecutor_TransportError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exec: \"claude\": executable file not found")}
	e := NewCLIExecutor(Config{}, runner)

	result, err := e.Execute(context.Background(), testTask("task-abc", "do work"))
	if err == nil {
		t.Fatal("expected error when the agent cannot run")
	}
	if result != nil {
		t.Errorf("expected nil result for transport error, got %+v", result)
	}
}

func TestTimeoutFor(t *testing.T) {
	e := NewCLIExecutor(Config{Timeout: 10 * time.Minute}, &fakeRunner{})

	tests := []struct {
		name     string
		estimate time.Duration
		want     time.Duration
	}{
		{"no estimate uses config", 0, 10 * time.Minute},
		{"estimate doubled", 20 * time.Minute, 40 * time.Minute},
		{"tiny estimate floored", 5 * time.Second, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := testTask("task-abc", "work")
			if tt.estimate > 0 {
				task.EstimatedDuration = &tt.estimate
			}
			if got := e.timeoutFor(task); got != tt.want {
				t.Errorf("timeoutFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	task := testTask("task-abc", "migrate the settings page")
	task.Dependencies = []string{"task-one", "task-two"}
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task.Deadline = &deadline

	prompt := buildPrompt(task)

	for _, want := range []string{
		"task-abc",
		"migrate the settings page",
		"2 tasks",
		"task-one, task-two",
		"2026-03-01T12:00:00Z",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q:\n%s", want, prompt)
		}
	}
}
