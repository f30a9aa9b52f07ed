package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

func TestScriptExecutor_Success(t *testing.T) {
	e := NewScriptExecutor(0, "", nil)

	task := models.NewTask("echo scripted", models.SourceHuman)
	result, err := e.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Error)
	}
	if !strings.Contains(result.Output, "scripted") {
		t.Errorf("expected command output, got %q", result.Output)
	}
}

func TestScriptExecutor_NonZeroExit(t *testing.T) {
	e := NewScriptExecutor(0, "", nil)

	task := models.NewTask("echo failing >&2; exit 4", models.SourceHuman)
	result, err := e.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("expected nil error for task failure, got %v", err)
	}

	if result.Success {
		t.Error("expected failure for non-zero exit")
	}
	if !strings.Contains(result.Error, "code 4") {
		t.Errorf("expected exit code in error, got %q", result.Error)
	}
}

func TestScriptExecutor_Timeout(t *testing.T) {
	e := NewScriptExecutor(50*time.Millisecond, "", nil)

	task := models.NewTask("sleep 10", models.SourceHuman)
	result, err := e.Execute(context.Background(), task)
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
