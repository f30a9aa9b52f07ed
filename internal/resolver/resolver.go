// Package resolver answers graph questions about the task dependency
// relation: dependency depth, cycle detection, blocked-task lookup,
// dependency satisfaction, and topological ordering. It never mutates task
// state.
//
// The graph is an index over store edges rather than pointer-linked nodes,
// so a cyclic dependency can never produce a cyclic data structure here.
// Depth results are cached per task ID with a TTL; any dependency or
// completion mutation must invalidate the affected entries.
package resolver

import (
	"fmt"
	"sync"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// DefaultCacheTTL is the default time-to-live for cached depth results.
const DefaultCacheTTL = 60 * time.Second

// Store is the slice of the task store the resolver reads from.
type Store interface {
	GetTask(id string) (*models.Task, error)
	ListTasks(status *models.TaskStatus, limit int) ([]models.Task, error)
	DependencyIDs(taskID string) ([]string, error)
	DependentIDs(taskID string) ([]string, error)
	Edges() ([][2]string, error)
}

// depthEntry is a cached depth result.
type depthEntry struct {
	depth     int
	expiresAt time.Time
}

// Resolver answers dependency-graph queries backed by the task store.
// Safe for concurrent use; the cache is guarded by an RWMutex and store
// reads happen outside the lock.
type Resolver struct {
	store Store

	mu         sync.RWMutex
	depthCache map[string]depthEntry

	cacheTTL time.Duration
	now      func() time.Time // For testing
	debugLog func(format string, args ...interface{})
}

// New creates a resolver over the given store. If cacheTTL is 0,
// DefaultCacheTTL is used.
func New(store Store, cacheTTL time.Duration) *Resolver {
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Resolver{
		store:      store,
		depthCache: make(map[string]depthEntry),
		cacheTTL:   cacheTTL,
		now:        time.Now,
		debugLog:   func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (r *Resolver) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.debugLog = fn
	}
}

// cachedDepth returns a still-valid cached depth for the task, if any.
func (r *Resolver) cachedDepth(id string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.depthCache[id]
	if !ok || r.now().After(e.expiresAt) {
		return 0, false
	}
	return e.depth, true
}

// storeDepths caches a batch of computed depths with a fresh TTL.
func (r *Resolver) storeDepths(depths map[string]int) {
	expires := r.now().Add(r.cacheTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range depths {
		r.depthCache[id] = depthEntry{depth: d, expiresAt: expires}
	}
}

// Invalidate drops the cached results for a task and its transitive
// dependents. A dependency mutation changes the depth of everything
// downstream, so the whole chain goes. If the dependent walk fails the
// entire cache is dropped instead; correctness takes priority over hit-rate.
func (r *Resolver) Invalidate(taskID string) {
	affected := []string{taskID}
	seen := map[string]bool{taskID: true}
	for i := 0; i < len(affected); i++ {
		dependents, err := r.store.DependentIDs(affected[i])
		if err != nil {
			r.debugLog("[resolver.Invalidate] dependent walk failed for %s: %v", affected[i], err)
			r.InvalidateAll()
			return
		}
		for _, id := range dependents {
			if !seen[id] {
				seen[id] = true
				affected = append(affected, id)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range affected {
		delete(r.depthCache, id)
	}
	r.debugLog("[resolver.Invalidate] dropped %d cache entries from %s", len(affected), taskID)
}

// InvalidateAll drops every cached result.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depthCache = make(map[string]depthEntry)
}

// CalculateDepth returns the dependency depth of a task: 0 for a task with
// no dependencies, otherwise 1 + the maximum depth among its dependencies.
// Returns models.ErrCycleDetected if the chain loops back on itself.
func (r *Resolver) CalculateDepth(taskID string) (int, error) {
	if d, ok := r.cachedDepth(taskID); ok {
		return d, nil
	}

	// Edge rows are foreign-key constrained, so only the root needs an
	// existence check.
	if _, err := r.store.GetTask(taskID); err != nil {
		return 0, err
	}

	visiting := make(map[string]bool)
	memo := make(map[string]int)
	d, err := r.depth(taskID, visiting, memo)
	if err != nil {
		return 0, err
	}

	r.storeDepths(memo)
	return d, nil
}

// depth computes dependency depth recursively with memoization and a
// visiting set so a cycle fails fast instead of recursing forever.
func (r *Resolver) depth(id string, visiting map[string]bool, memo map[string]int) (int, error) {
	if d, ok := memo[id]; ok {
		return d, nil
	}
	if d, ok := r.cachedDepth(id); ok {
		memo[id] = d
		return d, nil
	}
	if visiting[id] {
		return 0, fmt.Errorf("depth of %s: %w", id, models.ErrCycleDetected)
	}
	visiting[id] = true

	deps, err := r.store.DependencyIDs(id)
	if err != nil {
		return 0, err
	}

	d := 0
	for _, depID := range deps {
		depDepth, err := r.depth(depID, visiting, memo)
		if err != nil {
			return 0, err
		}
		if depDepth+1 > d {
			d = depDepth + 1
		}
	}

	delete(visiting, id)
	memo[id] = d
	return d, nil
}

// DetectCycle reports whether adding the edge task -> dependency would close
// a cycle: true when the proposed dependency already reaches the task
// through its own dependency chain. A self-loop is always a cycle.
func (r *Resolver) DetectCycle(taskID, newDependencyID string) (bool, error) {
	if taskID == newDependencyID {
		return true, nil
	}

	// Walk the dependency chain outward from the proposed dependency
	// looking for the task.
	stack := []string{newDependencyID}
	seen := map[string]bool{newDependencyID: true}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		deps, err := r.store.DependencyIDs(id)
		if err != nil {
			return false, err
		}
		for _, depID := range deps {
			if depID == taskID {
				return true, nil
			}
			if !seen[depID] {
				seen[depID] = true
				stack = append(stack, depID)
			}
		}
	}
	return false, nil
}

// GetBlockedTasks returns the IDs of non-terminal tasks that list the given
// task as a dependency. Backed by the store's reverse index, so cost is
// proportional to the number of dependents.
func (r *Resolver) GetBlockedTasks(prerequisiteID string) ([]string, error) {
	if _, err := r.store.GetTask(prerequisiteID); err != nil {
		return nil, err
	}

	dependents, err := r.store.DependentIDs(prerequisiteID)
	if err != nil {
		return nil, err
	}

	var blocked []string
	for _, id := range dependents {
		t, err := r.store.GetTask(id)
		if err != nil {
			return nil, err
		}
		if !t.Status.IsTerminal() {
			blocked = append(blocked, id)
		}
	}
	return blocked, nil
}

// AllDependenciesMet reports whether the task's dependency condition is
// satisfied: every dependency completed for sequential tasks, or at least
// the parallel threshold for parallel tasks.
func (r *Resolver) AllDependenciesMet(taskID string) (bool, error) {
	t, err := r.store.GetTask(taskID)
	if err != nil {
		return false, err
	}
	if len(t.Dependencies) == 0 {
		return true, nil
	}

	required := t.RequiredDependencies()
	completed := 0
	for _, depID := range t.Dependencies {
		dep, err := r.store.GetTask(depID)
		if err != nil {
			return false, err
		}
		if dep.Status == models.TaskStatusCompleted {
			completed++
			if completed >= required {
				return true, nil
			}
		}
	}
	return completed >= required, nil
}
