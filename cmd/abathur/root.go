package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/config"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
)

var (
	rootConfigPath   string
	rootDebugLogPath string
)

// CheckAgentCLI verifies that the configured agent CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckAgentCLI(command string) error {
	_, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Abathur drives an external coding agent CLI to execute tasks.\n\n"+
			"Install the default agent with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"Or point agent.command at another CLI in .abathur.yaml,\n"+
			"or run with --api to call the Anthropic API directly", command)
	}
	return nil
}

// loadConfig loads configuration, honoring the --config override.
func loadConfig() (*config.Config, error) {
	if rootConfigPath != "" {
		return config.LoadFromPath(rootConfigPath)
	}
	return config.Load()
}

// openDebugLogger opens the debug log named by --debug-log. With no flag it
// returns a no-op logger, so callers can use it unconditionally.
func openDebugLogger() (*swarm.DebugLogger, error) {
	if rootDebugLogPath == "" {
		return swarm.NopLogger(), nil
	}
	return swarm.NewDebugLogger(rootDebugLogPath)
}

var rootCmd = &cobra.Command{
	Use:   "abathur",
	Short: "Task orchestration for a swarm of coding agents",
	Long: `Abathur maintains a persistent task queue with dependency tracking,
computes multi-factor priorities, and dispatches ready tasks to a bounded
pool of agent executions.

Tasks live in a SQLite database, so queues survive restarts and multiple
commands can inspect the same state. Dependencies form a DAG: a task stays
blocked until enough of its dependencies complete, then the swarm picks it
up in priority order.

Core capabilities:
- Durable task queue with optimistic-concurrency updates
- Sequential and parallel (threshold) dependency semantics
- Priority scoring from depth, urgency, blocking weight, and source
- Bounded concurrent dispatch with graceful drain on shutdown
- Automatic retries with a circuit breaker around the agent executor`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to a config file (overrides discovery)")
	rootCmd.PersistentFlags().StringVar(&rootDebugLogPath, "debug-log", "", "Append scheduler debug output to this file")

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
