package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// setupResolver creates a resolver over a fresh temporary store.
func setupResolver(t *testing.T) (*Resolver, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return New(db, 0), db
}

// addTask persists a pending task with the given dependencies.
func addTask(t *testing.T, db *store.DB, id string, deps ...string) *models.Task {
	t.Helper()
	task := models.NewTask("task "+id, models.SourceHuman)
	task.ID = id
	task.Dependencies = deps
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask(%s) failed: %v", id, err)
	}
	return task
}

func TestCalculateDepth_Chain(t *testing.T) {
	r, db := setupResolver(t)

	// task-0 <- task-1 <- task-2 <- task-3 <- task-4
	addTask(t, db, "task-0")
	for i := 1; i < 5; i++ {
		addTask(t, db, fmt.Sprintf("task-%d", i), fmt.Sprintf("task-%d", i-1))
	}

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("task-%d", i)
		depth, err := r.CalculateDepth(id)
		if err != nil {
			t.Fatalf("CalculateDepth(%s) failed: %v", id, err)
		}
		if depth != i {
			t.Errorf("depth(%s) = %d, want %d", id, depth, i)
		}
	}
}

func TestCalculateDepth_Diamond(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")
	addTask(t, db, "task-c", "task-a")
	addTask(t, db, "task-d", "task-b", "task-c")

	want := map[string]int{"task-a": 0, "task-b": 1, "task-c": 1, "task-d": 2}
	for id, w := range want {
		depth, err := r.CalculateDepth(id)
		if err != nil {
			t.Fatalf("CalculateDepth(%s) failed: %v", id, err)
		}
		if depth != w {
			t.Errorf("depth(%s) = %d, want %d", id, depth, w)
		}
	}
}

func TestCalculateDepth_UnknownTask(t *testing.T) {
	r, _ := setupResolver(t)

	_, err := r.CalculateDepth("task-ghost")
	if !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("CalculateDepth on unknown id = %v, want ErrTaskNotFound", err)
	}
}

func TestCalculateDepth_CycleFailsInsteadOfRecursing(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")
	// Force the back edge with no guard to build a corrupt graph.
	if err := db.InsertDependency("task-a", "task-b", nil); err != nil {
		t.Fatalf("forcing cycle edge failed: %v", err)
	}

	_, err := r.CalculateDepth("task-a")
	if !errors.Is(err, models.ErrCycleDetected) {
		t.Errorf("depth over cycle = %v, want ErrCycleDetected", err)
	}
}

func TestDetectCycle(t *testing.T) {
	r, db := setupResolver(t)

	// task-c -> task-b -> task-a
	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")
	addTask(t, db, "task-c", "task-b")
	addTask(t, db, "task-x")

	tests := []struct {
		name   string
		taskID string
		depID  string
		want   bool
	}{
		{"self loop", "task-a", "task-a", true},
		{"direct back edge", "task-a", "task-b", true},
		{"transitive back edge", "task-a", "task-c", true},
		{"forward edge is fine", "task-c", "task-a", false},
		{"unrelated task is fine", "task-x", "task-c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.DetectCycle(tt.taskID, tt.depID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectCycle(%s, %s) = %v, want %v", tt.taskID, tt.depID, got, tt.want)
			}
		})
	}
}

func TestInsertDependency_ResolverGuardRejectsCycle(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")

	err := db.InsertDependency("task-a", "task-b", r)
	if !errors.Is(err, models.ErrCycleDetected) {
		t.Fatalf("cyclic insert = %v, want ErrCycleDetected", err)
	}

	// The rejected edge must leave the store unchanged.
	deps, err := db.DependencyIDs("task-a")
	if err != nil {
		t.Fatalf("DependencyIDs failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("rejected edge persisted: %v", deps)
	}
}

func TestGetBlockedTasks(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")
	addTask(t, db, "task-c", "task-a")
	done := addTask(t, db, "task-d", "task-a")

	// Terminal dependents do not count as blocked.
	if err := db.UpdateStatus("task-d", models.TaskStatusCancelled, done.Version); err != nil {
		t.Fatalf("cancel task-d failed: %v", err)
	}

	blocked, err := r.GetBlockedTasks("task-a")
	if err != nil {
		t.Fatalf("GetBlockedTasks failed: %v", err)
	}
	if len(blocked) != 2 {
		t.Fatalf("blocked = %v, want [task-b task-c]", blocked)
	}
	for _, id := range blocked {
		if id != "task-b" && id != "task-c" {
			t.Errorf("unexpected blocked task %s", id)
		}
	}
}

func TestGetBlockedTasks_NoDependents(t *testing.T) {
	r, db := setupResolver(t)
	addTask(t, db, "task-a")

	blocked, err := r.GetBlockedTasks("task-a")
	if err != nil {
		t.Fatalf("GetBlockedTasks failed: %v", err)
	}
	if len(blocked) != 0 {
		t.Errorf("blocked = %v, want empty", blocked)
	}
}

func TestGetBlockedTasks_UnknownTask(t *testing.T) {
	r, _ := setupResolver(t)

	_, err := r.GetBlockedTasks("task-ghost")
	if !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("GetBlockedTasks on unknown id = %v, want ErrTaskNotFound", err)
	}
}

func TestAllDependenciesMet_Sequential(t *testing.T) {
	r, db := setupResolver(t)

	a := addTask(t, db, "task-a")
	b := addTask(t, db, "task-b")
	addTask(t, db, "task-c", "task-a", "task-b")

	met, err := r.AllDependenciesMet("task-c")
	if err != nil {
		t.Fatalf("AllDependenciesMet failed: %v", err)
	}
	if met {
		t.Error("no dependency completed yet, want not met")
	}

	completeTask(t, db, "task-a", a.Version)
	met, _ = r.AllDependenciesMet("task-c")
	if met {
		t.Error("one of two sequential dependencies completed, want not met")
	}

	completeTask(t, db, "task-b", b.Version)
	met, _ = r.AllDependenciesMet("task-c")
	if !met {
		t.Error("all sequential dependencies completed, want met")
	}
}

func TestAllDependenciesMet_ParallelThreshold(t *testing.T) {
	r, db := setupResolver(t)

	a := addTask(t, db, "task-a")
	addTask(t, db, "task-b")
	addTask(t, db, "task-c")

	task := models.NewTask("fan-in", models.SourceHuman)
	task.ID = "task-d"
	task.Dependencies = []string{"task-a", "task-b", "task-c"}
	task.DependencyType = models.DependencyParallel
	task.ParallelThreshold = 1
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	met, err := r.AllDependenciesMet("task-d")
	if err != nil {
		t.Fatalf("AllDependenciesMet failed: %v", err)
	}
	if met {
		t.Error("threshold 1 with nothing completed, want not met")
	}

	completeTask(t, db, "task-a", a.Version)
	met, _ = r.AllDependenciesMet("task-d")
	if !met {
		t.Error("threshold 1 with one completed, want met")
	}
}

func TestAllDependenciesMet_NoDependencies(t *testing.T) {
	r, db := setupResolver(t)
	addTask(t, db, "task-a")

	met, err := r.AllDependenciesMet("task-a")
	if err != nil {
		t.Fatalf("AllDependenciesMet failed: %v", err)
	}
	if !met {
		t.Error("task without dependencies should always be met")
	}
}

func TestDepthCache_TTLExpiry(t *testing.T) {
	r, db := setupResolver(t)

	clock := time.Now()
	r.now = func() time.Time { return clock }

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")

	depth, err := r.CalculateDepth("task-b")
	if err != nil {
		t.Fatalf("CalculateDepth failed: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}

	// Deepen the chain behind the cache's back.
	addTask(t, db, "task-root")
	if err := db.InsertDependency("task-a", "task-root", nil); err != nil {
		t.Fatalf("InsertDependency failed: %v", err)
	}

	// Within the TTL the stale cached value is served.
	depth, _ = r.CalculateDepth("task-b")
	if depth != 1 {
		t.Errorf("depth within TTL = %d, want cached 1", depth)
	}

	// Past the TTL the entry expires and the new depth is computed.
	clock = clock.Add(DefaultCacheTTL + time.Second)
	depth, _ = r.CalculateDepth("task-b")
	if depth != 2 {
		t.Errorf("depth after TTL = %d, want recomputed 2", depth)
	}
}

func TestInvalidate_DropsTaskAndDependents(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")
	addTask(t, db, "task-c", "task-b")

	if _, err := r.CalculateDepth("task-c"); err != nil {
		t.Fatalf("CalculateDepth failed: %v", err)
	}

	// New root under task-a deepens the whole chain.
	addTask(t, db, "task-root")
	if err := db.InsertDependency("task-a", "task-root", nil); err != nil {
		t.Fatalf("InsertDependency failed: %v", err)
	}

	r.Invalidate("task-a")

	depth, err := r.CalculateDepth("task-c")
	if err != nil {
		t.Fatalf("CalculateDepth failed: %v", err)
	}
	if depth != 3 {
		t.Errorf("depth after invalidation = %d, want 3", depth)
	}
}

func TestInvalidateAll(t *testing.T) {
	r, db := setupResolver(t)

	addTask(t, db, "task-a")
	addTask(t, db, "task-b", "task-a")

	if _, err := r.CalculateDepth("task-b"); err != nil {
		t.Fatalf("CalculateDepth failed: %v", err)
	}

	addTask(t, db, "task-root")
	if err := db.InsertDependency("task-a", "task-root", nil); err != nil {
		t.Fatalf("InsertDependency failed: %v", err)
	}

	r.InvalidateAll()

	depth, _ := r.CalculateDepth("task-b")
	if depth != 2 {
		t.Errorf("depth after InvalidateAll = %d, want 2", depth)
	}
}

// completeTask walks a task through running to completed.
func completeTask(t *testing.T, db *store.DB, id string, version int64) {
	t.Helper()
	if err := db.UpdateStatus(id, models.TaskStatusReady, version); err != nil {
		t.Fatalf("ready %s failed: %v", id, err)
	}
	if err := db.UpdateStatus(id, models.TaskStatusRunning, version+1); err != nil {
		t.Fatalf("run %s failed: %v", id, err)
	}
	if err := db.UpdateStatus(id, models.TaskStatusCompleted, version+2); err != nil {
		t.Fatalf("complete %s failed: %v", id, err)
	}
}
