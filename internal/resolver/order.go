package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// TopologicalOrder orders the given tasks so that every task appears after
// all of its dependencies within the set. Among tasks whose dependencies
// are satisfied at the same step, higher calculated priority comes first,
// ties broken by submission time (oldest first) and then ID. Dependencies
// outside the given set are ignored. Returns models.ErrCycleDetected if the
// induced subgraph contains a cycle.
func (r *Resolver) TopologicalOrder(taskIDs []string) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}

	inSet := make(map[string]bool, len(taskIDs))
	tasks := make(map[string]*models.Task, len(taskIDs))
	for _, id := range taskIDs {
		if inSet[id] {
			continue
		}
		t, err := r.store.GetTask(id)
		if err != nil {
			return nil, err
		}
		inSet[id] = true
		tasks[id] = t
	}

	// Build the induced subgraph: in-degree per task and the reverse edges
	// needed to release dependents as tasks are emitted.
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for id, t := range tasks {
		for _, depID := range t.Dependencies {
			if !inSet[depID] {
				continue
			}
			inDegree[id]++
			dependents[depID] = append(dependents[depID], id)
		}
	}

	frontier := make([]string, 0, len(tasks))
	for id := range tasks {
		if inDegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]string, 0, len(tasks))
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			a, b := tasks[frontier[i]], tasks[frontier[j]]
			if a.CalculatedPriority != b.CalculatedPriority {
				return a.CalculatedPriority > b.CalculatedPriority
			}
			if !a.SubmittedAt.Equal(b.SubmittedAt) {
				return a.SubmittedAt.Before(b.SubmittedAt)
			}
			return a.ID < b.ID
		})

		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		for _, depID := range dependents[id] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				frontier = append(frontier, depID)
			}
		}
	}

	if len(order) != len(tasks) {
		return nil, fmt.Errorf("order %d tasks: %w", len(tasks), models.ErrCycleDetected)
	}
	return order, nil
}

// Validate checks the whole stored graph for cycles and returns a valid
// execution order over every task.
func (r *Resolver) Validate() ([]string, error) {
	tasks, err := r.store.ListTasks(nil, 0)
	if err != nil {
		return nil, err
	}

	hasDeps := make(map[string]bool, len(tasks))
	edgePairs, err := r.store.Edges()
	if err != nil {
		return nil, err
	}

	// Edge (depID, taskID) means depID must come before taskID.
	var edges []toposort.Edge
	for _, pair := range edgePairs {
		edges = append(edges, toposort.Edge{pair[1], pair[0]})
		hasDeps[pair[0]] = true
	}
	for _, t := range tasks {
		if !hasDeps[t.ID] {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, t.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Catches disconnected components dropped by the sort
	if len(order) != len(tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, t := range tasks {
			if !found[t.ID] {
				missing = append(missing, t.ID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}
