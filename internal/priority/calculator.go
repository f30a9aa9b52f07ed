// Package priority scores tasks for dispatch ordering. Each task receives a
// calculated priority in [0,100] combining five weighted signals: the
// submitter's base priority, dependency depth, deadline urgency, blocking
// impact, and task source.
package priority

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// recalcWorkers bounds concurrent store reads during batch recalculation.
const recalcWorkers = 8

// weightTolerance is the allowed drift when checking that weights sum to 1.0.
const weightTolerance = 0.001

// Weights configures the relative influence of each scoring signal.
// The five weights must sum to 1.0.
type Weights struct {
	// Base weighs the submitter-supplied base priority.
	Base float64 `yaml:"base" mapstructure:"base"`
	// Depth weighs dependency-chain depth, favoring in-flight chains.
	Depth float64 `yaml:"depth" mapstructure:"depth"`
	// Urgency weighs deadline pressure.
	Urgency float64 `yaml:"urgency" mapstructure:"urgency"`
	// Blocking weighs how many other tasks this task is holding up.
	Blocking float64 `yaml:"blocking" mapstructure:"blocking"`
	// Source weighs task provenance, favoring human-submitted work.
	Source float64 `yaml:"source" mapstructure:"source"`
}

// DefaultWeights returns the standard signal weighting.
func DefaultWeights() Weights {
	return Weights{
		Base:     0.30,
		Depth:    0.25,
		Urgency:  0.25,
		Blocking: 0.15,
		Source:   0.05,
	}
}

// Validate checks that every weight is non-negative and that the five
// weights sum to 1.0 within tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"base":     w.Base,
		"depth":    w.Depth,
		"urgency":  w.Urgency,
		"blocking": w.Blocking,
		"source":   w.Source,
	} {
		if v < 0 {
			return fmt.Errorf("weight %q is negative: %v", name, v)
		}
	}
	sum := w.Base + w.Depth + w.Urgency + w.Blocking + w.Source
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Store is the task persistence surface the calculator needs.
type Store interface {
	GetTask(id string) (*models.Task, error)
	UpdatePriorityRetry(ctx context.Context, id string, priority float64, cfg store.RetryConfig) error
}

// Graph answers the dependency questions behind the depth and blocking scores.
type Graph interface {
	CalculateDepth(taskID string) (int, error)
	GetBlockedTasks(prerequisiteID string) ([]string, error)
}

// Calculator computes task priorities. It holds no mutable state beyond its
// configured weights, which may be swapped at runtime, so a single instance
// is safe to share across concurrent callers.
type Calculator struct {
	store Store
	graph Graph

	// mu guards weights, which can be hot-reloaded while scoring runs.
	mu      sync.RWMutex
	weights Weights

	retry store.RetryConfig

	// now is the time source. For testing.
	now func() time.Time

	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a Calculator with the default weights.
func New(st Store, graph Graph) *Calculator {
	return &Calculator{
		store:    st,
		graph:    graph,
		weights:  DefaultWeights(),
		retry:    store.DefaultRetryConfig(),
		now:      time.Now,
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (c *Calculator) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		c.debugLog = fn
	}
}

// SetWeights replaces the scoring weights after validating them.
func (c *Calculator) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("rejecting weights: %w", err)
	}
	c.mu.Lock()
	c.weights = w
	c.mu.Unlock()
	c.debugLog("[priority.SetWeights] weights updated: base=%.2f depth=%.2f urgency=%.2f blocking=%.2f source=%.2f",
		w.Base, w.Depth, w.Urgency, w.Blocking, w.Source)
	return nil
}

// Weights returns the currently configured weights.
func (c *Calculator) Weights() Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weights
}

// CalculatePriority scores a single task. Errors from the resolver propagate
// to the caller; nothing is persisted.
func (c *Calculator) CalculatePriority(task *models.Task) (float64, error) {
	depth, err := c.graph.CalculateDepth(task.ID)
	if err != nil {
		return 0, fmt.Errorf("calculating depth for %s: %w", task.ID, err)
	}
	blocked, err := c.graph.GetBlockedTasks(task.ID)
	if err != nil {
		return 0, fmt.Errorf("counting blocked tasks for %s: %w", task.ID, err)
	}

	w := c.Weights()
	score := baseScore(task)*w.Base +
		depthScore(depth)*w.Depth +
		c.urgencyScore(task)*w.Urgency +
		blockingScore(len(blocked))*w.Blocking +
		sourceScore(task.Source)*w.Source

	clamped := clamp(score)
	c.debugLog("[priority.Calculate] task=%s depth=%d blocked=%d score=%.2f",
		task.ID, depth, len(blocked), clamped)
	return clamped, nil
}

// RecalculatePriorities scores and persists priorities for a batch of tasks.
// Tasks that are running or terminal are skipped; per-task errors are logged
// and skipped so one bad task cannot abort the rest of the batch. The
// returned map contains only the tasks whose priority was written.
func (c *Calculator) RecalculatePriorities(ctx context.Context, taskIDs []string) (map[string]float64, error) {
	results := make(map[string]float64, len(taskIDs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcWorkers)
	for _, id := range taskIDs {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, applied, err := c.recalculateOne(ctx, id)
			if err != nil {
				c.debugLog("[priority.Recalculate] skipping task %s: %v", id, err)
				return nil
			}
			if !applied {
				return nil
			}
			mu.Lock()
			results[id] = score
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("recalculating priorities: %w", err)
	}
	return results, nil
}

// recalculateOne fetches, scores, and persists one task's priority. The
// second return reports whether a new priority was written; tasks in a
// running or terminal status are left untouched.
func (c *Calculator) recalculateOne(ctx context.Context, id string) (float64, bool, error) {
	task, err := c.store.GetTask(id)
	if err != nil {
		return 0, false, err
	}

	switch task.Status {
	case models.TaskStatusPending, models.TaskStatusBlocked, models.TaskStatusReady:
	default:
		return 0, false, nil
	}

	score, err := c.CalculatePriority(task)
	if err != nil {
		return 0, false, err
	}
	if err := c.store.UpdatePriorityRetry(ctx, id, score, c.retry); err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// baseScore maps the 0-10 base priority scale onto 0-100.
func baseScore(t *models.Task) float64 {
	return float64(t.BasePriority) * 10
}

// depthScore rewards tasks deeper in a dependency chain so in-flight chains
// finish before new ones start.
func depthScore(depth int) float64 {
	return math.Min(100, float64(depth)*10)
}

// urgencyScore rates deadline pressure. A task that is past due, or whose
// estimated duration no longer fits in the remaining window, maxes out.
func (c *Calculator) urgencyScore(t *models.Task) float64 {
	if t.Deadline == nil {
		return 0
	}
	remaining := t.Deadline.Sub(c.now())
	if remaining <= 0 {
		return 100
	}
	if t.EstimatedDuration != nil && remaining < *t.EstimatedDuration {
		return 100
	}
	switch {
	case remaining < time.Minute:
		return 100
	case remaining < time.Hour:
		return 80
	case remaining < 24*time.Hour:
		return 50
	case remaining < 7*24*time.Hour:
		return 30
	default:
		return 10
	}
}

// blockingScore buckets the number of tasks waiting on this one. The
// buckets cap the influence of super-blockers so they dominate without
// saturating the whole formula.
func blockingScore(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n <= 2:
		return 20
	case n <= 5:
		return 40
	case n <= 10:
		return 60
	case n <= 20:
		return 80
	default:
		return 100
	}
}

// sourceScore rates task provenance. Human-submitted work outranks
// agent-generated work, and earlier pipeline stages outrank later ones.
func sourceScore(s models.TaskSource) float64 {
	switch s {
	case models.SourceHuman:
		return 100
	case models.SourceAgentRequirements:
		return 75
	case models.SourceAgentPlanner:
		return 50
	case models.SourceAgentImplementation:
		return 25
	default:
		return 0
	}
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
