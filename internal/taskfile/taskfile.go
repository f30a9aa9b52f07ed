// Package taskfile loads task definitions from YAML seed files and imports
// them into the store.
package taskfile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// File is the top-level shape of a task definition file.
type File struct {
	Tasks []Definition `yaml:"tasks"`
}

// Definition is one task entry as written by the user. Optional fields fall
// back to the same defaults the CLI uses.
type Definition struct {
	// ID is optional; omitted IDs are generated.
	ID string `yaml:"id,omitempty"`
	// Description is what the task should accomplish. Required.
	Description string `yaml:"description"`
	// Priority is the base priority on a 0-10 scale.
	Priority *int `yaml:"priority,omitempty"`
	// DependsOn lists IDs this task depends on: other entries in the same
	// file or tasks already in the store.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Source records provenance; defaults to human.
	Source string `yaml:"source,omitempty"`
	// Deadline is an RFC3339 timestamp.
	Deadline string `yaml:"deadline,omitempty"`
	// EstimatedDuration is the expected runtime in seconds.
	EstimatedDuration int `yaml:"estimated_duration,omitempty"`
	// DependencyType is sequential or parallel.
	DependencyType string `yaml:"dependency_type,omitempty"`
	// ParallelThreshold is how many parallel dependencies must complete.
	ParallelThreshold int `yaml:"parallel_threshold,omitempty"`
	// MaxRetries bounds automatic retries.
	MaxRetries *int `yaml:"max_retries,omitempty"`
}

// Load reads and parses a task definition file.
func Load(path string) ([]*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	tasks, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tasks, nil
}

// Parse converts raw YAML into validated tasks, sorted by base priority
// descending with file order preserved among equals. Dependency references
// to IDs outside the file are allowed here; Import resolves them against
// the store.
func Parse(data []byte) ([]*models.Task, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal task file: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, errors.New("task file defines no tasks")
	}

	tasks := make([]*models.Task, 0, len(f.Tasks))
	seen := make(map[string]bool, len(f.Tasks))
	for i, def := range f.Tasks {
		task, err := buildTask(def)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("task %d: duplicate id %q", i+1, task.ID)
		}
		seen[task.ID] = true
		tasks = append(tasks, task)
	}

	if err := detectFileCycle(tasks); err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].BasePriority > tasks[j].BasePriority
	})
	return tasks, nil
}

// buildTask validates one definition and converts it to a task.
func buildTask(def Definition) (*models.Task, error) {
	if def.Description == "" {
		return nil, errors.New("description is required")
	}

	source := models.SourceHuman
	if def.Source != "" {
		source = models.TaskSource(def.Source)
		if !source.Valid() {
			return nil, fmt.Errorf("unknown source %q", def.Source)
		}
	}

	task := models.NewTask(def.Description, source)
	if def.ID != "" {
		task.ID = def.ID
	}

	if def.Priority != nil {
		if *def.Priority < 0 || *def.Priority > 10 {
			return nil, fmt.Errorf("priority %d out of range 0-10", *def.Priority)
		}
		task.BasePriority = *def.Priority
	}

	for _, dep := range def.DependsOn {
		if dep == task.ID {
			return nil, fmt.Errorf("task %q depends on itself", task.ID)
		}
	}
	task.Dependencies = append([]string(nil), def.DependsOn...)

	if def.DependencyType != "" {
		dt := models.DependencyType(def.DependencyType)
		if !dt.Valid() {
			return nil, fmt.Errorf("unknown dependency_type %q", def.DependencyType)
		}
		task.DependencyType = dt
	}
	if def.ParallelThreshold < 0 {
		return nil, fmt.Errorf("parallel_threshold %d is negative", def.ParallelThreshold)
	}
	task.ParallelThreshold = def.ParallelThreshold

	if def.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, def.Deadline)
		if err != nil {
			return nil, fmt.Errorf("deadline %q is not RFC3339: %w", def.Deadline, err)
		}
		task.Deadline = &deadline
	}

	if def.EstimatedDuration < 0 {
		return nil, fmt.Errorf("estimated_duration %d is negative", def.EstimatedDuration)
	}
	if def.EstimatedDuration > 0 {
		d := time.Duration(def.EstimatedDuration) * time.Second
		task.EstimatedDuration = &d
	}

	if def.MaxRetries != nil {
		if *def.MaxRetries < 0 {
			return nil, fmt.Errorf("max_retries %d is negative", *def.MaxRetries)
		}
		task.MaxRetries = *def.MaxRetries
	}

	return task, nil
}

// detectFileCycle walks dependency edges between tasks defined in the same
// file. Edges pointing outside the file cannot close a cycle (existing
// tasks never depend on new ones) so they are ignored here.
func detectFileCycle(tasks []*models.Task) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	color := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range byID[id].Dependencies {
			if _, inFile := byID[dep]; !inFile {
				continue
			}
			switch color[dep] {
			case gray:
				return fmt.Errorf("tasks %s and %s: %w", id, dep, models.ErrCycleDetected)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Store is the persistence surface Import needs.
type Store interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	InsertDependency(taskID, dependencyID string, guard store.CycleGuard) error
}

// Import persists parsed tasks. Tasks are created first and dependency
// edges inserted after, so entries may reference later entries in the same
// file. Tasks with dependencies start blocked, the rest pending; the next
// readiness pass promotes whatever is actually ready. Returns the imported
// task IDs in creation order.
func Import(st Store, guard store.CycleGuard, tasks []*models.Task) ([]string, error) {
	inFile := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		inFile[t.ID] = true
	}

	// Validate before writing anything: no ID collisions with the store,
	// and every outside dependency reference must already exist.
	for _, t := range tasks {
		if _, err := st.GetTask(t.ID); err == nil {
			return nil, fmt.Errorf("task %s already exists", t.ID)
		} else if !errors.Is(err, models.ErrTaskNotFound) {
			return nil, fmt.Errorf("check task %s: %w", t.ID, err)
		}
		for _, dep := range t.Dependencies {
			if inFile[dep] {
				continue
			}
			if _, err := st.GetTask(dep); err != nil {
				if errors.Is(err, models.ErrTaskNotFound) {
					return nil, fmt.Errorf("task %s: unknown dependency %q", t.ID, dep)
				}
				return nil, fmt.Errorf("check dependency %s: %w", dep, err)
			}
		}
	}

	var imported []string
	for _, t := range tasks {
		row := t.Clone()
		if len(row.Dependencies) > 0 {
			row.Status = models.TaskStatusBlocked
		}
		// Edges go in separately below so forward references resolve.
		row.Dependencies = nil
		if err := st.CreateTask(row); err != nil {
			return imported, fmt.Errorf("create task %s: %w", t.ID, err)
		}
		imported = append(imported, t.ID)
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if err := st.InsertDependency(t.ID, dep, guard); err != nil {
				return imported, fmt.Errorf("link %s -> %s: %w", t.ID, dep, err)
			}
		}
	}

	return imported, nil
}
