package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/audit"
	"github.com/odgrim/abathur-swarm-sub016/internal/resolver"
	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks in the queue",
	Long: `Inspect and modify the task queue.

Tasks are durable: they live in the project database and survive across
runs. Use these subcommands to queue work, wire up dependencies, and
recover failed tasks without starting the swarm.`,
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskRetryCmd)
	taskCmd.AddCommand(taskDepsCmd)
}

// openProjectStore opens the task database the way 'run' does: the
// configured path, or the project-local default.
func openProjectStore() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return openTaskStore(cfg, cwd)
}

// ==== task add ====

var (
	taskAddPriority          int
	taskAddDependsOn         []string
	taskAddDeadline          string
	taskAddEstimate          time.Duration
	taskAddSource            string
	taskAddDepType           string
	taskAddParallelThreshold int
	taskAddMaxRetries        int
	taskAddParent            string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Queue a new task",
	Long: `Queue a new task for the swarm.

A task with dependencies starts out blocked and becomes ready once enough
of its dependencies complete: all of them for sequential tasks, or
--parallel-threshold of them for parallel tasks.

Examples:
  abathur task add "write the migration script"
  abathur task add --priority 8 --deadline 2026-09-01T12:00:00Z "ship it"
  abathur task add --depends-on task-1a2b3c4d "integration tests"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskAdd,
}

func init() {
	taskAddCmd.Flags().IntVar(&taskAddPriority, "priority", models.DefaultBasePriority, "Base priority, 0 (lowest) to 10 (highest)")
	taskAddCmd.Flags().StringSliceVar(&taskAddDependsOn, "depends-on", nil, "Task IDs this task depends on (repeatable)")
	taskAddCmd.Flags().StringVar(&taskAddDeadline, "deadline", "", "Deadline in RFC 3339 form (e.g. 2026-09-01T12:00:00Z)")
	taskAddCmd.Flags().DurationVar(&taskAddEstimate, "estimate", 0, "Estimated execution duration (e.g. 30m)")
	taskAddCmd.Flags().StringVar(&taskAddSource, "source", string(models.SourceHuman), "Task source: human, agent_requirements, agent_planner, or agent_implementation")
	taskAddCmd.Flags().StringVar(&taskAddDepType, "dependency-type", string(models.DependencySequential), "Dependency semantics: sequential or parallel")
	taskAddCmd.Flags().IntVar(&taskAddParallelThreshold, "parallel-threshold", 0, "Completed dependencies needed for a parallel task (default from config)")
	taskAddCmd.Flags().IntVar(&taskAddMaxRetries, "max-retries", 0, "Automatic retry budget (default from config)")
	taskAddCmd.Flags().StringVar(&taskAddParent, "parent", "", "Parent task ID for spawned subtasks")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	source := models.TaskSource(taskAddSource)
	if !source.Valid() {
		return fmt.Errorf("invalid source %q: must be human, agent_requirements, agent_planner, or agent_implementation", taskAddSource)
	}
	depType := models.DependencyType(taskAddDepType)
	if !depType.Valid() {
		return fmt.Errorf("invalid dependency type %q: must be sequential or parallel", taskAddDepType)
	}
	if taskAddPriority < 0 || taskAddPriority > 10 {
		return fmt.Errorf("priority %d out of range [0, 10]", taskAddPriority)
	}

	task := models.NewTask(strings.Join(args, " "), source)
	task.BasePriority = taskAddPriority
	task.CalculatedPriority = float64(taskAddPriority)
	task.DependencyType = depType

	if taskAddDeadline != "" {
		deadline, err := time.Parse(time.RFC3339, taskAddDeadline)
		if err != nil {
			return fmt.Errorf("invalid deadline %q: %w", taskAddDeadline, err)
		}
		task.Deadline = &deadline
	}
	if taskAddEstimate > 0 {
		estimate := taskAddEstimate
		task.EstimatedDuration = &estimate
	}

	task.MaxRetries = cfg.Limits.MaxRetries
	if cmd.Flags().Changed("max-retries") {
		task.MaxRetries = taskAddMaxRetries
	}
	if depType == models.DependencyParallel {
		task.ParallelThreshold = cfg.Limits.ParallelThreshold
		if cmd.Flags().Changed("parallel-threshold") {
			task.ParallelThreshold = taskAddParallelThreshold
		}
	}

	db, err := openProjectStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if taskAddParent != "" {
		if _, err := db.GetTask(taskAddParent); err != nil {
			return fmt.Errorf("parent task: %w", err)
		}
		task.ParentTaskID = taskAddParent
	}

	deps := dedupe(taskAddDependsOn)
	for _, depID := range deps {
		if depID == task.ID {
			return fmt.Errorf("task cannot depend on itself")
		}
		if _, err := db.GetTask(depID); err != nil {
			return fmt.Errorf("dependency %s: %w", depID, err)
		}
	}
	if len(deps) > 0 {
		task.Dependencies = deps
		task.Status = models.TaskStatusBlocked
	}

	if err := db.CreateTask(task); err != nil {
		return err
	}

	fmt.Printf("%s Created task %s\n", color.GreenString("✓"), task.ID)
	if len(deps) > 0 {
		fmt.Printf("  blocked on %d %s\n", len(deps), plural(len(deps), "dependency", "dependencies"))
	}
	return nil
}

// dedupe returns ids with duplicates removed, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

// ==== task list ====

var (
	taskListStatus string
	taskListLimit  int
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only show tasks with this status")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "Maximum number of tasks to show (0 = all)")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	var filter *models.TaskStatus
	if taskListStatus != "" {
		status := models.TaskStatus(taskListStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", taskListStatus)
		}
		filter = &status
	}

	db, err := openProjectStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tasks, err := db.ListTasks(filter, taskListLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	fmt.Printf("  %-13s %-20s %-8s %-7s %s\n", "ID", "STATUS", "PRIORITY", "RETRIES", "DESCRIPTION")
	for _, t := range tasks {
		fmt.Printf("%s %-13s %-20s %8.1f %3d/%-3d %s\n",
			statusIcon(t.Status), t.ID, t.Status, t.CalculatedPriority,
			t.RetryCount, t.MaxRetries, truncateLine(t.Description, 44))
	}
	return nil
}

// ==== task show ====

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	db, err := openProjectStore()
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.GetTask(args[0])
	if err != nil {
		return err
	}
	dependents, err := db.DependentIDs(t.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s\n", t.ID)
	fmt.Printf("  Description: %s\n", t.Description)
	fmt.Printf("  Status: %s\n", t.Status)
	fmt.Printf("  Source: %s\n", t.Source)
	fmt.Printf("  Priority: %.1f (base %d)\n", t.CalculatedPriority, t.BasePriority)
	if t.DependencyType == models.DependencyParallel {
		fmt.Printf("  Dependency type: parallel (threshold %d)\n", t.ParallelThreshold)
	} else {
		fmt.Printf("  Dependency type: sequential\n")
	}
	if len(t.Dependencies) > 0 {
		fmt.Printf("  Depends on: %s\n", strings.Join(t.Dependencies, ", "))
	}
	if len(dependents) > 0 {
		fmt.Printf("  Blocks: %s\n", strings.Join(dependents, ", "))
	}
	fmt.Printf("  Retries: %d of %d used\n", t.RetryCount, t.MaxRetries)
	if t.Deadline != nil {
		fmt.Printf("  Deadline: %s\n", t.Deadline.Format(time.RFC3339))
	}
	if t.EstimatedDuration != nil {
		fmt.Printf("  Estimated duration: %s\n", t.EstimatedDuration)
	}
	if t.ParentTaskID != "" {
		fmt.Printf("  Parent: %s\n", t.ParentTaskID)
	}
	if t.SpawnedByTaskID != "" {
		fmt.Printf("  Spawned by: %s\n", t.SpawnedByTaskID)
	}
	fmt.Printf("  Submitted: %s\n", t.SubmittedAt.Format(time.RFC3339))
	if t.StartedAt != nil {
		fmt.Printf("  Started: %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if t.LastError != "" {
		fmt.Printf("  Last error: %s\n", t.LastError)
	}
	fmt.Printf("  Version: %d\n", t.Version)
	return nil
}

// ==== task cancel ====

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task and everything that depends on it",
	Long: `Cancel a task.

Cancellation cascades: every task that transitively depends on the
cancelled task is cancelled too, since its dependencies can no longer be
satisfied. Already-terminal tasks are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCancel,
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logger, err := openDebugLogger()
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	db, err := openTaskStore(cfg, cwd)
	if err != nil {
		return err
	}
	defer db.Close()

	graph := resolver.New(db, cfg.Swarm.CacheTTL)
	graph.SetDebugLog(logger.Log)

	// A swarm that is never started still knows how to cascade a cancel
	// through the dependency graph.
	orch := swarm.New(db, graph, nil, nil, swarm.Config{Logger: logger})

	cancelled, cancelErr := orch.Cancel(context.Background(), args[0])
	for _, id := range cancelled {
		fmt.Printf("%s Cancelled %s\n", color.YellowString("⊘"), id)
	}
	if len(cancelled) == 0 && cancelErr == nil {
		fmt.Printf("Task %s was already settled; nothing to cancel.\n", args[0])
	}

	if len(cancelled) > 0 {
		if auditStore := openAuditStore(cfg, cwd); auditStore != nil {
			detail := fmt.Sprintf("cancelled %d tasks: %s", len(cancelled), strings.Join(cancelled, " "))
			if err := auditStore.Record(audit.KindCascadeCancel, args[0], detail); err != nil {
				logger.Log("audit record failed: %v", err)
			}
			auditStore.Close()
		}
	}

	if cancelErr != nil {
		return fmt.Errorf("cancel %s: %w", args[0], cancelErr)
	}
	return nil
}

// ==== task retry ====

var taskRetryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Requeue a failed task",
	Long: `Requeue a failed task for another attempt.

Retrying consumes one attempt from the task's retry budget. Only failed
tasks can be retried; use 'abathur task show' to check the budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskRetry,
}

func runTaskRetry(cmd *cobra.Command, args []string) error {
	db, err := openProjectStore()
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.RetryTask(args[0])
	if err != nil {
		if errors.Is(err, models.ErrRetriesExhausted) {
			return fmt.Errorf("task %s has used its whole retry budget; requeue it as a new task if the work still matters", args[0])
		}
		var transition *models.InvalidStatusTransitionError
		if errors.As(err, &transition) {
			return fmt.Errorf("task %s is %s; only failed tasks can be retried", args[0], transition.From)
		}
		return err
	}

	fmt.Printf("%s Requeued %s (retry %d of %d)\n", color.GreenString("✓"), t.ID, t.RetryCount, t.MaxRetries)
	return nil
}

// ==== task deps ====

var taskDepsCmd = &cobra.Command{
	Use:   "deps <task-id>",
	Short: "Show a task's dependency relationships",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDeps,
}

func runTaskDeps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := openTaskStore(cfg, cwd)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.GetTask(args[0])
	if err != nil {
		return err
	}

	graph := resolver.New(db, cfg.Swarm.CacheTTL)

	fmt.Printf("Task %s: \"%s\"\n", t.ID, truncateLine(t.Description, 60))

	depth, err := graph.CalculateDepth(t.ID)
	if err != nil {
		if errors.Is(err, models.ErrCycleDetected) {
			fmt.Println("  Depth: unresolvable (dependency cycle)")
		} else {
			return err
		}
	} else {
		fmt.Printf("  Depth: %d\n", depth)
	}

	met, err := graph.AllDependenciesMet(t.ID)
	if err != nil {
		return err
	}
	if met {
		fmt.Println("  Dependencies satisfied: yes")
	} else {
		fmt.Println("  Dependencies satisfied: no")
	}

	if len(t.Dependencies) > 0 {
		fmt.Println("  Depends on:")
		for _, depID := range t.Dependencies {
			dep, err := db.GetTask(depID)
			if err != nil {
				fmt.Printf("    ? %s (missing)\n", depID)
				continue
			}
			fmt.Printf("    %s %s [%s]\n", statusIcon(dep.Status), dep.ID, dep.Status)
		}
	}

	dependents, err := db.DependentIDs(t.ID)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		fmt.Println("  Blocks:")
		for _, id := range dependents {
			fmt.Printf("    %s\n", id)
		}
	}
	return nil
}
