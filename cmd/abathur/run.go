package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/agent"
	"github.com/odgrim/abathur-swarm-sub016/internal/api"
	"github.com/odgrim/abathur-swarm-sub016/internal/audit"
	"github.com/odgrim/abathur-swarm-sub016/internal/config"
	"github.com/odgrim/abathur-swarm-sub016/internal/priority"
	"github.com/odgrim/abathur-swarm-sub016/internal/resolver"
	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/internal/taskfile"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

var (
	runMaxAgents    int
	runLimit        int
	runPollInterval time.Duration
	runTasksFile    string
	runTUI          bool
	runAPI          bool
	runScript       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the swarm over the queued tasks",
	Long: `Run the swarm: poll the task queue, dispatch ready tasks to agents in
priority order, and keep going until the queue drains, a completion limit
is reached, or you stop it.

Up to --max-agents tasks execute concurrently. Failed tasks are requeued
with a retry budget, and a circuit breaker pauses dispatch when the agent
executor fails repeatedly.

Executor selection:
  default    Invoke the agent CLI (agent.command, normally claude) per task
  --api      Call the Anthropic API directly instead of the CLI
  --script   Treat each task description as a shell command (dry runs)

Interrupting with Ctrl-C drains in-flight executions before exiting;
a second interrupt aborts immediately.

Examples:
  abathur run --tui                 # Watch the swarm in a dashboard
  abathur run --limit 10            # Stop after ten settled tasks
  abathur run --tasks backlog.yaml  # Import a task file, then run`,
	Args: cobra.NoArgs,
	RunE: runSwarm,
}

func init() {
	runCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Maximum concurrent agent executions (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Stop after this many settled executions (0 = run until drained)")
	runCmd.Flags().DurationVar(&runPollInterval, "poll-interval", 0, "Queue polling interval (default from config)")
	runCmd.Flags().StringVar(&runTasksFile, "tasks", "", "Import tasks from a YAML/JSON file before running")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live dashboard instead of log lines")
	runCmd.Flags().BoolVar(&runAPI, "api", false, "Execute tasks via the Anthropic API instead of the agent CLI")
	runCmd.Flags().BoolVar(&runScript, "script", false, "Execute task descriptions as shell commands (dry runs)")
}

func runSwarm(cmd *cobra.Command, args []string) (retErr error) {
	// Recover from panics and report them
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runSwarm: %v", r)
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("max-agents") {
		cfg.Swarm.MaxConcurrentAgents = runMaxAgents
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.Swarm.PollInterval = runPollInterval
	}

	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Scheduler debug output goes to --debug-log when given, otherwise to
	// the project's .abathur/logs directory.
	var logger *swarm.DebugLogger
	if rootDebugLogPath != "" {
		logger, err = swarm.NewDebugLogger(rootDebugLogPath)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
	} else {
		logger = swarm.NewDebugLoggerForProject(repoPath)
	}
	defer logger.Close()

	db, err := openTaskStore(cfg, repoPath)
	if err != nil {
		return err
	}
	defer db.Close()

	graph := resolver.New(db, cfg.Swarm.CacheTTL)
	graph.SetDebugLog(logger.Log)

	calc := priority.New(db, graph)
	calc.SetDebugLog(logger.Log)
	if err := calc.SetWeights(cfg.Priority.Weights); err != nil {
		return fmt.Errorf("configured priority weights: %w", err)
	}

	// Hot reloading of scoring weights. The watcher is optional: a missing
	// weights file just means the configured weights stay in effect.
	if cfg.Priority.WeightsFile != "" {
		watcher, err := config.WatchWeights(cfg.Priority.WeightsFile, func(w priority.Weights) {
			if err := calc.SetWeights(w); err != nil {
				logger.Log("weights reload rejected: %v", err)
			}
		})
		if err != nil {
			fmt.Printf("Warning: weights watcher unavailable: %v\n", err)
		} else {
			watcher.SetDebugLog(logger.Log)
			defer watcher.Close()
		}
	}

	// The audit trail is best effort: if it cannot be opened the swarm
	// still runs, it just leaves no incident history behind.
	auditStore := openAuditStore(cfg, repoPath)
	if auditStore != nil {
		defer auditStore.Close()
	}

	executor, apiClient, err := newExecutor(cfg, repoPath, logger, auditStore)
	if err != nil {
		return err
	}

	orch := swarm.New(db, graph, calc, executor, swarm.Config{
		MaxConcurrentAgents: cfg.Swarm.MaxConcurrentAgents,
		PollInterval:        cfg.Swarm.PollInterval,
		StopTimeout:         cfg.Swarm.StopTimeout,
		Logger:              logger,
	})

	if runTasksFile != "" {
		tasks, err := taskfile.Load(runTasksFile)
		if err != nil {
			return err
		}
		imported, err := taskfile.Import(db, graph, tasks)
		if err != nil {
			return fmt.Errorf("import %s: %w", runTasksFile, err)
		}
		fmt.Printf("Imported %d tasks from %s\n", len(imported), runTasksFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First interrupt drains gracefully, second aborts.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		if !runTUI {
			fmt.Println("\nReceived interrupt, draining in-flight executions (interrupt again to abort)...")
		}
		go func() {
			if err := orch.Stop(); err != nil && !runTUI {
				fmt.Fprintf(os.Stderr, "stop: %v\n", err)
			}
		}()
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if runTUI {
		return runSwarmTUI(ctx, orch, db, auditStore, logger, runLimit)
	}

	fmt.Printf("Starting swarm: %d agents, polling every %s", cfg.Swarm.MaxConcurrentAgents, cfg.Swarm.PollInterval)
	if runLimit > 0 {
		fmt.Printf(", stopping after %d settled executions", runLimit)
	}
	fmt.Println()

	go consumeEvents(orch.Events(), auditStore, logger)

	if err := orch.Start(ctx, runLimit); err != nil {
		return fmt.Errorf("swarm run: %w", err)
	}

	printRunSummary(orch, apiClient)
	return nil
}

// openTaskStore opens and migrates the task database named by config,
// falling back to the project-local path.
func openTaskStore(cfg *config.Config, repoPath string) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = store.ProjectDBPath(repoPath)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open task database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate task database: %w", err)
	}
	return db, nil
}

// openAuditStore opens the audit database, or returns nil if it cannot.
func openAuditStore(cfg *config.Config, repoPath string) *audit.Store {
	auditPath := cfg.Database.AuditPath
	if auditPath == "" {
		auditPath = filepath.Join(repoPath, ".abathur", "audit.db")
	}
	auditStore, err := audit.NewStore(auditPath)
	if err != nil {
		fmt.Printf("Warning: audit trail unavailable: %v\n", err)
		return nil
	}
	return auditStore
}

// newExecutor builds the task executor selected by flags and config, wrapped
// in a circuit breaker. The returned client is non-nil only in API mode, so
// callers can report token usage afterwards.
func newExecutor(cfg *config.Config, repoPath string, logger *swarm.DebugLogger, auditStore *audit.Store) (swarm.Executor, *api.Client, error) {
	var (
		inner     swarm.Executor
		apiClient *api.Client
	)

	switch {
	case runScript:
		inner = agent.NewScriptExecutor(cfg.Agent.Timeout, repoPath, nil)

	case runAPI || cfg.Agent.UseAPI:
		clientCfg := api.ClientConfig{
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		}
		if !cfg.Anthropic.UseBedrock {
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("API mode needs credentials: %w (set ANTHROPIC_API_KEY or anthropic.api_key)", err)
			}
			clientCfg.APIKey = key
		}
		client, err := api.NewClient(clientCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create API client: %w", err)
		}
		apiClient = client
		inner = agent.NewAPIExecutor(client, cfg.Agent.Model, cfg.Agent.Timeout)

	default:
		if err := CheckAgentCLI(cfg.Agent.Command); err != nil {
			return nil, nil, err
		}
		cli := agent.NewCLIExecutor(agent.Config{
			Command: cfg.Agent.Command,
			Args:    cfg.Agent.Args,
			Model:   cfg.Agent.Model,
			Timeout: cfg.Agent.Timeout,
			WorkDir: repoPath,
		}, nil)
		cli.SetDebugLog(logger.Log)
		inner = cli
	}

	breakerCfg := swarm.DefaultBreakerConfig()
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Log("breaker %s: %s -> %s", name, from, to)
		if to == gobreaker.StateOpen && auditStore != nil {
			detail := fmt.Sprintf("executor breaker opened (%s -> %s)", from, to)
			if err := auditStore.Record(audit.KindBreakerOpen, "", detail); err != nil {
				logger.Log("audit record failed: %v", err)
			}
		}
	}
	return swarm.NewBreakerExecutor("agent", inner, breakerCfg), apiClient, nil
}

// consumeEvents prints swarm events as log lines and feeds the audit trail.
// It owns the events channel and returns when the channel closes.
func consumeEvents(events <-chan swarm.Event, auditStore *audit.Store, logger *swarm.DebugLogger) {
	for ev := range events {
		printEvent(ev)
		recordAuditEvent(auditStore, logger, ev)
	}
}

// printEvent writes a one-line account of a swarm event.
func printEvent(ev swarm.Event) {
	line := eventLine(ev)
	if line == "" {
		return
	}
	fmt.Printf("%s %s\n", ev.Timestamp.Format("15:04:05"), line)
}

// eventLine renders the human-readable body for each event type.
func eventLine(ev swarm.Event) string {
	switch ev.Type {
	case swarm.EventSwarmStarted:
		return "swarm started"
	case swarm.EventSwarmStopped:
		return fmt.Sprintf("swarm stopped (%d completed)", ev.CompletedCount)
	case swarm.EventTaskDispatched:
		return fmt.Sprintf("%s %s", ev.TaskID, ev.Message)
	case swarm.EventTaskCompleted:
		return fmt.Sprintf("%s completed (%d done)", ev.TaskID, ev.CompletedCount)
	case swarm.EventTaskFailed:
		return fmt.Sprintf("%s failed: %v", ev.TaskID, ev.Error)
	case swarm.EventTaskCancelled:
		if ev.Message != "" {
			return fmt.Sprintf("%s %s", ev.TaskID, ev.Message)
		}
		return fmt.Sprintf("%s cancelled", ev.TaskID)
	case swarm.EventTaskRetried:
		return fmt.Sprintf("%s requeued (attempt %d)", ev.TaskID, ev.Attempt)
	case swarm.EventTaskReady:
		return fmt.Sprintf("%s ready", ev.TaskID)
	case swarm.EventRetriesExhausted:
		return fmt.Sprintf("%s failed permanently: retries exhausted", ev.TaskID)
	case swarm.EventClaimConflict:
		return fmt.Sprintf("%s claim lost: %s", ev.TaskID, ev.Message)
	case swarm.EventLimitReached:
		return fmt.Sprintf("completion limit reached (%d done)", ev.CompletedCount)
	case swarm.EventAgentError:
		return fmt.Sprintf("%s agent error: %v", ev.TaskID, ev.Error)
	default:
		if ev.TaskID != "" {
			return fmt.Sprintf("%s %s", ev.TaskID, ev.Message)
		}
		return ev.Message
	}
}

// recordAuditEvent maps scheduler incidents to audit records. Failures are
// logged, never fatal.
func recordAuditEvent(auditStore *audit.Store, logger *swarm.DebugLogger, ev swarm.Event) {
	if auditStore == nil {
		return
	}
	var kind audit.Kind
	switch ev.Type {
	case swarm.EventRetriesExhausted:
		kind = audit.KindRetriesExhausted
	case swarm.EventClaimConflict:
		kind = audit.KindVersionConflict
	default:
		return
	}
	if err := auditStore.Record(kind, ev.TaskID, ev.Message); err != nil {
		logger.Log("audit record failed: %v", err)
	}
}

// printRunSummary reports what the run accomplished and what remains queued.
func printRunSummary(orch *swarm.Orchestrator, apiClient *api.Client) {
	status, err := orch.Status()
	if err != nil {
		return
	}

	fmt.Printf("\nSettled %d executions this run.\n", status.CompletedCount)

	remaining := status.QueueStats[models.TaskStatusPending] +
		status.QueueStats[models.TaskStatusReady] +
		status.QueueStats[models.TaskStatusBlocked] +
		status.QueueStats[models.TaskStatusRunning]
	if remaining > 0 {
		fmt.Printf("%d tasks remain queued; run again to continue.\n", remaining)
	}

	if apiClient != nil {
		tracker := apiClient.Tracker()
		in, out := tracker.Total()
		fmt.Printf("API usage: %d calls, %d input / %d output tokens, $%.4f estimated\n",
			tracker.Calls(), in, out, tracker.Cost())
	}
}
