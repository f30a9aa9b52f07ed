package swarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// executorFunc adapts a function to the Executor interface.
type executorFunc func(ctx context.Context, task *models.Task) (*models.ExecutionResult, error)

func (f executorFunc) Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
	return f(ctx, task)
}

func TestBreakerExecutor_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := newFakeExecutor(0)
	inner.failAll = true

	var mu sync.Mutex
	var transitions []string
	be := NewBreakerExecutor("test", inner, BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 3,
		OnStateChange: func(name string, from, to gobreaker.State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	task := models.NewTask("doomed task", models.SourceHuman)
	for i := 0; i < 3; i++ {
		if _, err := be.Execute(context.Background(), task); err == nil {
			t.Fatalf("attempt %d should have failed", i+1)
		}
	}
	if got := be.State(); got != gobreaker.StateOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}

	// The open breaker fails fast without reaching the inner executor.
	_, err := be.Execute(context.Background(), task)
	if err == nil || !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("open breaker error = %v, want circuit open", err)
	}
	if got := inner.callCount(); got != 3 {
		t.Errorf("inner executor invoked %d times, want 3", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[len(transitions)-1] != "closed->open" {
		t.Errorf("state transitions = %v, want closed->open recorded", transitions)
	}
}

func TestBreakerExecutor_RecoversAfterTimeout(t *testing.T) {
	inner := newFakeExecutor(0)
	inner.failFirst["task-a"] = 2

	be := NewBreakerExecutor("test", inner, BreakerConfig{
		MaxRequests:         1,
		Timeout:             20 * time.Millisecond,
		ConsecutiveFailures: 2,
	})

	task := models.NewTask("flaky task", models.SourceHuman)
	task.ID = "task-a"
	for i := 0; i < 2; i++ {
		if _, err := be.Execute(context.Background(), task); err == nil {
			t.Fatalf("attempt %d should have failed", i+1)
		}
	}
	if got := be.State(); got != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	time.Sleep(50 * time.Millisecond)

	// The half-open probe succeeds and closes the breaker.
	result, err := be.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("probe after timeout failed: %v", err)
	}
	if !result.Success {
		t.Error("probe result should be successful")
	}
	if got := be.State(); got != gobreaker.StateClosed {
		t.Errorf("state after successful probe = %s, want closed", got)
	}
}

func TestBreakerExecutor_PassesResultThrough(t *testing.T) {
	inner := newFakeExecutor(0)
	be := NewBreakerExecutor("test", inner, DefaultBreakerConfig())

	task := models.NewTask("fine task", models.SourceHuman)
	result, err := be.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result == nil || !result.Success || result.TaskID != task.ID {
		t.Errorf("result = %+v, want inner executor's success", result)
	}
}

func TestBreakerExecutor_CancellationDoesNotTrip(t *testing.T) {
	inner := executorFunc(func(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
		return nil, context.Canceled
	})
	be := NewBreakerExecutor("test", inner, BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	})

	task := models.NewTask("cancelled task", models.SourceHuman)
	for i := 0; i < 10; i++ {
		if _, err := be.Execute(context.Background(), task); !errors.Is(err, context.Canceled) {
			t.Fatalf("Execute = %v, want context.Canceled passed through", err)
		}
	}
	if got := be.State(); got != gobreaker.StateClosed {
		t.Errorf("state after cancellations = %s, want closed (cancellation is not an executor fault)", got)
	}
}

func TestBreakerExecutor_TaskFailureDoesNotTrip(t *testing.T) {
	// A task that runs but does not succeed is the task's problem, not the
	// executor's. Only transport-level errors count toward tripping.
	inner := executorFunc(func(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
		return &models.ExecutionResult{TaskID: task.ID, Success: false, Error: "tests failed"}, nil
	})
	be := NewBreakerExecutor("test", inner, BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	})

	task := models.NewTask("unsuccessful task", models.SourceHuman)
	for i := 0; i < 10; i++ {
		result, err := be.Execute(context.Background(), task)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result.Success {
			t.Fatal("result should be unsuccessful")
		}
	}
	if got := be.State(); got != gobreaker.StateClosed {
		t.Errorf("state after unsuccessful results = %s, want closed", got)
	}
}
