package agent

import (
	"strconv"
	"strings"
	"time"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// buildPrompt constructs the prompt handed to the agent CLI.
func buildPrompt(task *models.Task) string {
	var sb strings.Builder

	sb.WriteString("You are completing one task from an automated work queue.\n\n")
	sb.WriteString("Task ID: ")
	sb.WriteString(task.ID)
	sb.WriteString("\n")

	if task.Source != "" {
		sb.WriteString("Submitted by: ")
		sb.WriteString(string(task.Source))
		sb.WriteString("\n")
	}

	sb.WriteString("\nDescription:\n")
	sb.WriteString(task.Description)
	sb.WriteString("\n")

	// Completed dependencies are context the agent can rely on.
	if len(task.Dependencies) > 0 {
		sb.WriteString("\nThis task depended on ")
		sb.WriteString(countNoun(len(task.Dependencies), "task"))
		sb.WriteString(" that have already completed: ")
		sb.WriteString(strings.Join(task.Dependencies, ", "))
		sb.WriteString("\n")
	}

	if task.Deadline != nil {
		sb.WriteString("\nDeadline: ")
		sb.WriteString(task.Deadline.Format(time.RFC3339))
		sb.WriteString("\n")
	}

	sb.WriteString("\nComplete the task, then print a short summary of what was done.\n")

	return sb.String()
}

// countNoun formats "1 task" / "3 tasks".
func countNoun(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
