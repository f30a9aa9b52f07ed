package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/config"
	"github.com/odgrim/abathur-swarm-sub016/internal/store"
)

var (
	initForce          bool
	initSkipAgentCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize an Abathur project",
	Long: `Initialize a directory for use with Abathur.

This command sets up everything needed to run a swarm:
  - Verifies prerequisites (agent CLI, API key)
  - Creates the .abathur directory structure
  - Creates and migrates the project task database
  - Writes a .abathur.yaml template and default scoring weights

The directory argument is optional and defaults to the current directory.

Examples:
  abathur init              # Initialize current directory
  abathur init ./myproject  # Initialize specific directory
  abathur init --force      # Reinitialize even if already set up`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initSkipAgentCheck, "skip-agent-check", false, "Skip agent CLI availability check")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Step 1: Resolve target directory
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Abathur in %s...\n\n", absPath)

	// Step 2: Check if already initialized
	abathurDir := filepath.Join(absPath, ".abathur")
	if _, err := os.Stat(abathurDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	// Step 3: Verify prerequisites. Missing pieces are warnings, not
	// failures: the queue works before the executor does.
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !initSkipAgentCheck {
		if err := CheckAgentCLI(cfg.Agent.Command); err != nil {
			printStatus("⚠", fmt.Sprintf("%s CLI not found (abathur run will need --api or --script)", cfg.Agent.Command), color.FgYellow)
		} else {
			printStatus("✓", fmt.Sprintf("%s CLI found", cfg.Agent.Command), color.FgGreen)
		}
	}

	keySource := config.GetAPIKeySource(cfg)
	switch keySource {
	case config.KeySourceBedrock:
		printStatus("✓", "API credentials via AWS Bedrock", color.FgGreen)
	case config.KeySourceEnv:
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	case config.KeySourceConfig:
		printStatus("✓", "API key found in config file", color.FgGreen)
	default:
		printStatus("⚠", "No API credentials found (needed for --api mode)", color.FgYellow)
	}

	// Step 4: Create .abathur structure
	if err := os.MkdirAll(abathurDir, 0755); err != nil {
		return fmt.Errorf("creating .abathur directory: %w", err)
	}

	logsDir := filepath.Join(abathurDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating .abathur/logs directory: %w", err)
	}
	printStatus("✓", "Created .abathur directory structure", color.FgGreen)

	// Step 5: Create and migrate the project task database
	db, err := store.OpenProject(absPath)
	if err != nil {
		printStatus("✗", "Could not create task database", color.FgRed)
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		printStatus("✗", "Could not migrate task database", color.FgRed)
		return err
	}
	dbPath := db.Path()
	db.Close()
	printStatus("✓", fmt.Sprintf("Task database ready at %s", dbPath), color.FgGreen)

	// Step 6: Write config template and default weights
	if err := createProjectConfig(absPath); err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	printStatus("✓", "Created .abathur.yaml template", color.FgGreen)

	if err := createWeightsFile(absPath); err != nil {
		return fmt.Errorf("creating weights file: %w", err)
	}
	printStatus("✓", "Created .abathur/weights.yaml with default scoring weights", color.FgGreen)

	// Step 7: Update .gitignore when inside a git repository
	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with Abathur entries", color.FgGreen)
	}

	// Step 8: Success message
	fmt.Printf("\n%s Abathur initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if keySource == config.KeySourceNone {
		fmt.Println("  1. Set your API key (only needed for --api mode):")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  2. Queue some work:")
	fmt.Println("     abathur task add \"your task here\"")
	fmt.Println()
	fmt.Println("  3. Run the swarm:")
	fmt.Println("     abathur run --tui")
	fmt.Println()
	fmt.Println("  4. Learn more:")
	fmt.Println("     abathur --help")

	return nil
}

// createProjectConfig creates .abathur.yaml template
func createProjectConfig(repoPath string) error {
	configPath := filepath.Join(repoPath, ".abathur.yaml")

	// Check if already exists
	if _, err := os.Stat(configPath); err == nil {
		return nil // Already exists, don't overwrite
	}

	template := `# Abathur Project Configuration
# This file overrides defaults from ~/.config/abathur/config.yaml

priority:
  weights_file: .abathur/weights.yaml

# swarm:
#   max_concurrent_agents: 4
#   poll_interval: 100ms
#   stop_timeout: 30s
#   cache_ttl: 60s

# agent:
#   command: claude
#   args: ["-p"]
#   timeout: 15m
#   use_api: false
#   model: claude-sonnet-4-5

# database:
#   path: .abathur/tasks.db
#   audit_path: .abathur/audit.db

# limits:
#   max_retries: 3
#   parallel_threshold: 1
`

	return os.WriteFile(configPath, []byte(template), 0644)
}

// createWeightsFile writes default scoring weights for hot reloading.
func createWeightsFile(repoPath string) error {
	weightsPath := filepath.Join(repoPath, ".abathur", "weights.yaml")

	if _, err := os.Stat(weightsPath); err == nil {
		return nil // Already exists, don't overwrite
	}

	template := `# Priority scoring weights. Each value must be in [0, 1] and together
# they must sum to 1.0. Edits apply to a running swarm without a restart;
# invalid edits are ignored and the previous weights stay in effect.

base: 0.30
depth: 0.25
urgency: 0.25
blocking: 0.15
source: 0.05
`

	return os.WriteFile(weightsPath, []byte(template), 0644)
}

// updateGitignore adds Abathur entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	// Read existing .gitignore or create new
	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	abathurEntries := []string{
		".abathur/tasks.db*",
		".abathur/audit.db*",
		".abathur/logs/",
	}

	needsUpdate := false
	for _, entry := range abathurEntries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}

	if !needsUpdate {
		return nil // Already has all entries
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)

	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}

	newContent.WriteString("\n# Abathur\n")
	for _, entry := range abathurEntries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
