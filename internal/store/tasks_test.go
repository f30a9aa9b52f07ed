package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// mkTask creates a pending task with a fixed ID for deterministic tests.
func mkTask(id string) *models.Task {
	t := models.NewTask("test task "+id, models.SourceHuman)
	t.ID = id
	return t
}

// fakeGuard is a CycleGuard with a canned answer.
type fakeGuard struct {
	cyclic bool
	err    error
}

func (g *fakeGuard) DetectCycle(taskID, dependencyID string) (bool, error) {
	return g.cyclic, g.err
}

func TestCreateAndGetTask(t *testing.T) {
	db := setupTestDB(t)

	deadline := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	est := 45 * time.Minute

	task := mkTask("task-a")
	task.BasePriority = 8
	task.Deadline = &deadline
	task.EstimatedDuration = &est
	task.ParentTaskID = "task-parent"
	task.Source = models.SourceAgentPlanner

	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := db.GetTask("task-a")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Description != task.Description {
		t.Errorf("Description = %q, want %q", got.Description, task.Description)
	}
	if got.BasePriority != 8 {
		t.Errorf("BasePriority = %d, want 8", got.BasePriority)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, deadline)
	}
	if got.EstimatedDuration == nil || *got.EstimatedDuration != est {
		t.Errorf("EstimatedDuration = %v, want %v", got.EstimatedDuration, est)
	}
	if got.ParentTaskID != "task-parent" {
		t.Errorf("ParentTaskID = %q, want task-parent", got.ParentTaskID)
	}
	if got.Source != models.SourceAgentPlanner {
		t.Errorf("Source = %s, want agent_planner", got.Source)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
}

func TestCreateTask_PersistsDependencyOrder(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"task-c", "task-b", "task-a"} {
		if err := db.CreateTask(mkTask(id)); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", id, err)
		}
	}

	task := mkTask("task-d")
	task.Dependencies = []string{"task-c", "task-a", "task-b"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := db.GetTask("task-d")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	want := []string{"task-c", "task-a", "task-b"}
	if len(got.Dependencies) != len(want) {
		t.Fatalf("Dependencies = %v, want %v", got.Dependencies, want)
	}
	for i := range want {
		if got.Dependencies[i] != want[i] {
			t.Errorf("Dependencies[%d] = %s, want %s (order must be preserved)", i, got.Dependencies[i], want[i])
		}
	}
}

func TestGetTask_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetTask("task-missing")
	if !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("GetTask on missing id = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateTask_FullRowAndStaleWrite(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	fresh, err := db.GetTask("task-a")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	stale := fresh.Clone()

	fresh.Description = "rewritten description"
	fresh.BasePriority = 9
	fresh.MaxRetries = 7
	if err := db.UpdateTask(fresh); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if fresh.Version != 2 {
		t.Errorf("Version = %d after update, want 2", fresh.Version)
	}

	got, _ := db.GetTask("task-a")
	if got.Description != "rewritten description" || got.BasePriority != 9 || got.MaxRetries != 7 {
		t.Errorf("row not fully updated: %+v", got)
	}

	// The clone still carries version 1 and must lose.
	stale.Description = "competing write"
	err = db.UpdateTask(stale)
	var vc *models.VersionConflictError
	if !errors.As(err, &vc) {
		t.Fatalf("stale UpdateTask = %v, want VersionConflictError", err)
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	db := setupTestDB(t)

	task := mkTask("task-a")
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// pending -> ready is allowed
	if err := db.UpdateStatus("task-a", models.TaskStatusReady, 1); err != nil {
		t.Fatalf("UpdateStatus pending->ready failed: %v", err)
	}

	got, err := db.GetTask("task-a")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusReady {
		t.Errorf("Status = %s, want ready", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2 after one write", got.Version)
	}

	// ready -> completed skips running and must be rejected
	err = db.UpdateStatus("task-a", models.TaskStatusCompleted, 2)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("ready->completed = %v, want ErrInvalidTransition", err)
	}

	// rejected write must not bump the version
	got, _ = db.GetTask("task-a")
	if got.Version != 2 {
		t.Errorf("Version = %d after rejected write, want 2", got.Version)
	}
}

func TestUpdateStatus_VersionConflict(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Simulate two callers holding version 1; the first write wins.
	if err := db.UpdateStatus("task-a", models.TaskStatusReady, 1); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	err := db.UpdateStatus("task-a", models.TaskStatusBlocked, 1)
	var vc *models.VersionConflictError
	if !errors.As(err, &vc) {
		t.Fatalf("stale write = %v, want VersionConflictError", err)
	}
	if vc.Expected != 1 || vc.Actual != 2 {
		t.Errorf("conflict versions = %d/%d, want 1/2", vc.Expected, vc.Actual)
	}
}

func TestUpdateStatus_Timestamps(t *testing.T) {
	db := setupTestDB(t)

	task := mkTask("task-a")
	task.Status = models.TaskStatusReady
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := db.UpdateStatus("task-a", models.TaskStatusRunning, 1); err != nil {
		t.Fatalf("ready->running failed: %v", err)
	}
	got, _ := db.GetTask("task-a")
	if got.StartedAt == nil {
		t.Error("StartedAt should be set when task starts running")
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt should not be set yet")
	}

	if err := db.UpdateStatus("task-a", models.TaskStatusCompleted, 2); err != nil {
		t.Fatalf("running->completed failed: %v", err)
	}
	got, _ = db.GetTask("task-a")
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on terminal status")
	}
}

func TestUpdatePriority(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := db.UpdatePriority("task-a", 72.5, 1); err != nil {
		t.Fatalf("UpdatePriority failed: %v", err)
	}
	got, _ := db.GetTask("task-a")
	if got.CalculatedPriority != 72.5 {
		t.Errorf("CalculatedPriority = %v, want 72.5", got.CalculatedPriority)
	}

	if err := db.UpdatePriority("task-a", 120, got.Version); err == nil {
		t.Error("priority above 100 should be rejected")
	}
	if err := db.UpdatePriority("task-a", -1, got.Version); err == nil {
		t.Error("negative priority should be rejected")
	}
}

func TestGetNextReadyTask_Ordering(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)

	// Highest calculated priority wins regardless of insert order.
	low := mkTask("task-low")
	low.Status = models.TaskStatusReady
	low.CalculatedPriority = 20
	low.SubmittedAt = base.Add(-3 * time.Minute)

	high := mkTask("task-high")
	high.Status = models.TaskStatusReady
	high.CalculatedPriority = 80
	high.SubmittedAt = base

	// Same priority as high but submitted later: loses the tie-break.
	tied := mkTask("task-tied")
	tied.Status = models.TaskStatusReady
	tied.CalculatedPriority = 80
	tied.SubmittedAt = base.Add(time.Minute)

	running := mkTask("task-running")
	running.Status = models.TaskStatusRunning
	running.CalculatedPriority = 99

	for _, task := range []*models.Task{low, high, tied, running} {
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", task.ID, err)
		}
	}

	got, err := db.GetNextReadyTask()
	if err != nil {
		t.Fatalf("GetNextReadyTask failed: %v", err)
	}
	if got == nil || got.ID != "task-high" {
		t.Fatalf("next ready = %v, want task-high", got)
	}
}

func TestGetNextReadyTask_Empty(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetNextReadyTask()
	if err != nil {
		t.Fatalf("GetNextReadyTask failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil task on empty queue, got %v", got)
	}
}

func TestListTasks_FilterAndLimit(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"task-a", "task-b", "task-c"} {
		task := mkTask(id)
		task.SubmittedAt = base.Add(time.Duration(i) * time.Second)
		if id == "task-b" {
			task.Status = models.TaskStatusReady
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", id, err)
		}
	}

	ready := models.TaskStatusReady
	tasks, err := db.ListTasks(&ready, 0)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-b" {
		t.Errorf("filtered list = %v, want [task-b]", tasks)
	}

	all, err := db.ListTasks(nil, 2)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("limited list has %d tasks, want 2", len(all))
	}
	if all[0].ID != "task-a" {
		t.Errorf("list should be ordered by submission, got %s first", all[0].ID)
	}
}

func TestFailTask_RecordsError(t *testing.T) {
	db := setupTestDB(t)

	task := mkTask("task-a")
	task.Status = models.TaskStatusRunning
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := db.FailTask("task-a", "agent timed out", 1); err != nil {
		t.Fatalf("FailTask failed: %v", err)
	}

	got, _ := db.GetTask("task-a")
	if got.Status != models.TaskStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.LastError != "agent timed out" {
		t.Errorf("LastError = %q, want the failure message", got.LastError)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set on failure")
	}
}

func TestRetryTask(t *testing.T) {
	db := setupTestDB(t)

	task := mkTask("task-a")
	task.Status = models.TaskStatusFailed
	task.MaxRetries = 2
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := db.RetryTask("task-a")
	if err != nil {
		t.Fatalf("RetryTask failed: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
}

func TestRetryTask_Exhausted(t *testing.T) {
	db := setupTestDB(t)

	task := mkTask("task-a")
	task.Status = models.TaskStatusFailed
	task.MaxRetries = 1
	task.RetryCount = 1
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	_, err := db.RetryTask("task-a")
	if !errors.Is(err, models.ErrRetriesExhausted) {
		t.Errorf("RetryTask = %v, want ErrRetriesExhausted", err)
	}
}

func TestRetryTask_NotFailed(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	_, err := db.RetryTask("task-a")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("RetryTask on pending task = %v, want ErrInvalidTransition", err)
	}
}

func TestInsertDependency(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"task-a", "task-b"} {
		if err := db.CreateTask(mkTask(id)); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", id, err)
		}
	}

	if err := db.InsertDependency("task-b", "task-a", &fakeGuard{}); err != nil {
		t.Fatalf("InsertDependency failed: %v", err)
	}

	deps, err := db.DependencyIDs("task-b")
	if err != nil {
		t.Fatalf("DependencyIDs failed: %v", err)
	}
	if len(deps) != 1 || deps[0] != "task-a" {
		t.Errorf("dependencies = %v, want [task-a]", deps)
	}

	dependents, err := db.DependentIDs("task-a")
	if err != nil {
		t.Fatalf("DependentIDs failed: %v", err)
	}
	if len(dependents) != 1 || dependents[0] != "task-b" {
		t.Errorf("dependents = %v, want [task-b]", dependents)
	}

	// Duplicate insert is a no-op
	if err := db.InsertDependency("task-b", "task-a", &fakeGuard{}); err != nil {
		t.Fatalf("duplicate InsertDependency failed: %v", err)
	}
	deps, _ = db.DependencyIDs("task-b")
	if len(deps) != 1 {
		t.Errorf("duplicate insert produced %d edges, want 1", len(deps))
	}
}

func TestInsertDependency_SelfLoop(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	err := db.InsertDependency("task-a", "task-a", &fakeGuard{})
	if !errors.Is(err, models.ErrCycleDetected) {
		t.Errorf("self-loop = %v, want ErrCycleDetected", err)
	}
}

func TestInsertDependency_CycleRejectedStoreUnchanged(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"task-a", "task-b"} {
		if err := db.CreateTask(mkTask(id)); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", id, err)
		}
	}

	err := db.InsertDependency("task-a", "task-b", &fakeGuard{cyclic: true})
	if !errors.Is(err, models.ErrCycleDetected) {
		t.Fatalf("cyclic insert = %v, want ErrCycleDetected", err)
	}

	deps, _ := db.DependencyIDs("task-a")
	if len(deps) != 0 {
		t.Errorf("rejected edge must not be persisted, found %v", deps)
	}
}

func TestInsertDependency_UnknownTask(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	err := db.InsertDependency("task-a", "task-ghost", &fakeGuard{})
	if !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("unknown dependency = %v, want ErrTaskNotFound", err)
	}
}

func TestDeleteDependency(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"task-a", "task-b"} {
		if err := db.CreateTask(mkTask(id)); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", id, err)
		}
	}
	if err := db.InsertDependency("task-b", "task-a", &fakeGuard{}); err != nil {
		t.Fatalf("InsertDependency failed: %v", err)
	}

	if err := db.DeleteDependency("task-b", "task-a"); err != nil {
		t.Fatalf("DeleteDependency failed: %v", err)
	}

	deps, err := db.DependencyIDs("task-b")
	if err != nil {
		t.Fatalf("DependencyIDs failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("dependencies after delete = %v, want none", deps)
	}
	dependents, _ := db.DependentIDs("task-a")
	if len(dependents) != 0 {
		t.Errorf("reverse index still holds %v after delete", dependents)
	}

	// Deleting an absent edge is a no-op.
	if err := db.DeleteDependency("task-b", "task-a"); err != nil {
		t.Errorf("deleting absent edge = %v, want nil", err)
	}
}

func TestUpdateStatusRetry_ConvergesAfterConflict(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(mkTask("task-a")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Another writer advances the version before the retry helper runs; the
	// helper must re-fetch and still land the write.
	if err := db.UpdateStatus("task-a", models.TaskStatusBlocked, 1); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	err := db.UpdateStatusRetry(context.Background(), "task-a", models.TaskStatusReady, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("UpdateStatusRetry failed: %v", err)
	}

	got, _ := db.GetTask("task-a")
	if got.Status != models.TaskStatusReady {
		t.Errorf("Status = %s, want ready", got.Status)
	}
}

func TestCountByStatus(t *testing.T) {
	db := setupTestDB(t)

	for i, status := range []models.TaskStatus{
		models.TaskStatusPending, models.TaskStatusPending, models.TaskStatusReady,
	} {
		task := mkTask("task-" + string(rune('a'+i)))
		task.Status = status
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	counts, err := db.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[models.TaskStatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", counts[models.TaskStatusPending])
	}
	if counts[models.TaskStatusReady] != 1 {
		t.Errorf("ready count = %d, want 1", counts[models.TaskStatusReady])
	}
}
