package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm-sub016/internal/audit"
	"github.com/odgrim/abathur-swarm-sub016/internal/config"
	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue state and recent activity",
	Long: `Display the current state of the task queue.

Shows:
  - Task counts by status
  - The highest-priority ready task
  - Recently submitted tasks
  - Recent scheduler incidents from the audit trail`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try the configured path, then project database, then global
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = store.ProjectDBPath(cwd)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = store.GlobalDBPath()
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No task database found. Run 'abathur init' to set one up.")
		return nil
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open task database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate task database: %w", err)
	}

	counts, err := db.CountByStatus()
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}

	displayQueue(counts)

	if next, err := db.GetNextReadyTask(); err == nil && next != nil {
		fmt.Printf("\nNext up: %s (priority %.1f)\n  \"%s\"\n",
			next.ID, next.CalculatedPriority, truncateLine(next.Description, 70))
	}

	if err := displayRecentTasks(db); err != nil {
		return err
	}

	displayIncidents(cfg, cwd)
	return nil
}

// statusOrder is the lifecycle order used for queue display.
var statusOrder = []models.TaskStatus{
	models.TaskStatusPending,
	models.TaskStatusBlocked,
	models.TaskStatusReady,
	models.TaskStatusRunning,
	models.TaskStatusAwaitingChildren,
	models.TaskStatusAwaitingValidation,
	models.TaskStatusValidationRunning,
	models.TaskStatusValidationFailed,
	models.TaskStatusCompleted,
	models.TaskStatusFailed,
	models.TaskStatusCancelled,
}

func displayQueue(counts map[models.TaskStatus]int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		fmt.Println("Queue is empty. Add work with 'abathur task add \"description\"'.")
		return
	}

	fmt.Printf("Task Queue (%s tasks):\n", formatNumber(total))
	for _, status := range statusOrder {
		if n := counts[status]; n > 0 {
			fmt.Printf("  %-20s %s\n", status, formatNumber(n))
		}
	}
}

func displayRecentTasks(db *store.DB) error {
	tasks, err := db.ListTasks(nil, 0)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	// ListTasks is ordered oldest first; show the newest few.
	const recentLimit = 5
	start := len(tasks) - recentLimit
	if start < 0 {
		start = 0
	}

	fmt.Println("\nRecent Tasks:")
	for i := len(tasks) - 1; i >= start; i-- {
		t := tasks[i]
		age := formatDuration(time.Since(t.SubmittedAt))
		fmt.Printf("  %s %s: \"%s\" [%s, %s ago]\n",
			statusIcon(t.Status), t.ID, truncateLine(t.Description, 48), t.Status, age)
	}
	return nil
}

// displayIncidents shows the tail of the audit trail, if one exists.
func displayIncidents(cfg *config.Config, cwd string) {
	auditPath := cfg.Database.AuditPath
	if auditPath == "" {
		auditPath = filepath.Join(cwd, ".abathur", "audit.db")
	}
	if _, err := os.Stat(auditPath); os.IsNotExist(err) {
		return
	}

	auditStore, err := audit.NewStore(auditPath)
	if err != nil {
		return
	}
	defer auditStore.Close()

	entries, err := auditStore.List("", 5)
	if err != nil || len(entries) == 0 {
		return
	}

	fmt.Println("\nRecent Incidents:")
	for _, e := range entries {
		age := formatDuration(time.Since(e.RecordedAt))
		if e.TaskID == "" {
			fmt.Printf("  %s: %s (%s ago)\n", e.Kind, e.Detail, age)
			continue
		}
		fmt.Printf("  %s %s: %s (%s ago)\n", e.Kind, e.TaskID, e.Detail, age)
	}
}

// statusIcon maps a task status to a one-character marker.
func statusIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return "✓"
	case models.TaskStatusFailed, models.TaskStatusValidationFailed:
		return "✗"
	case models.TaskStatusCancelled:
		return "⊘"
	case models.TaskStatusRunning, models.TaskStatusValidationRunning:
		return "▶"
	case models.TaskStatusBlocked:
		return "◼"
	default:
		return "○"
	}
}

// truncateLine shortens s to at most maxLen runes with an ellipsis.
func truncateLine(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatNumber formats a number with commas.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	// Add commas every 3 digits from the right
	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		if len(s) > offset {
			result.WriteString(",")
		}
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}
