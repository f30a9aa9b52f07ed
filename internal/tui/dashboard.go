package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// SwarmEventMsg wraps an orchestrator event for the dashboard.
type SwarmEventMsg struct {
	Event swarm.Event
}

// QueueStatsMsg refreshes the queue totals shown in the header.
type QueueStatsMsg struct {
	Stats map[models.TaskStatus]int
}

// SwarmDoneMsg signals that the dispatch loop has exited.
type SwarmDoneMsg struct {
	Err error
}

// tickMsg drives elapsed-time updates.
type tickMsg time.Time

// maxLogEntries bounds the activity log shown at the bottom.
const maxLogEntries = 8

// executionRow is one in-flight task shown in the active table.
type executionRow struct {
	taskID      string
	description string
	startedAt   time.Time
}

// logEntry is one line in the activity log.
type logEntry struct {
	timestamp time.Time
	text      string
	isError   bool
}

// Dashboard is the bubbletea model for the run command's live view.
type Dashboard struct {
	// stop asks the orchestrator to stop and drain. Called on the first q.
	stop func() error
	// lookup resolves a task ID to its description for the active table.
	// Nil leaves the description column empty.
	lookup func(taskID string) string

	spinner   spinner.Model
	startTime time.Time
	width     int
	height    int

	running   bool
	stopping  bool
	done      bool
	doneErr   error
	quitting  bool

	rows       []executionRow
	completed  int
	succeeded  int
	failed     int
	cancelled  int
	retried    int
	queueStats map[models.TaskStatus]int
	logs       []logEntry

	styles dashboardStyles
}

// dashboardStyles holds the lipgloss styles for the dashboard.
type dashboardStyles struct {
	title   lipgloss.Style
	subtle  lipgloss.Style
	success lipgloss.Style
	errored lipgloss.Style
	warning lipgloss.Style
	hint    lipgloss.Style
}

func newDashboardStyles() dashboardStyles {
	return dashboardStyles{
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		errored: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// New creates a Dashboard. stop is invoked on the first quit request; lookup
// (optional) resolves task descriptions for the active table.
func New(stop func() error, lookup func(taskID string) string) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Dashboard{
		stop:      stop,
		lookup:    lookup,
		spinner:   s,
		startTime: time.Now(),
		width:     80,
		styles:    newDashboardStyles(),
	}
}

// NewProgram creates a bubbletea program running the dashboard. The returned
// program receives orchestrator updates via Send().
func NewProgram(stop func() error, lookup func(taskID string) string) (*tea.Program, *Dashboard) {
	dash := New(stop, lookup)
	p := tea.NewProgram(dash, tea.WithAltScreen())
	return p, dash
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spinner.Tick, d.tickCmd())
}

// tickCmd schedules the next elapsed-time update.
func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case spinner.TickMsg:
		if !d.done {
			var cmd tea.Cmd
			d.spinner, cmd = d.spinner.Update(msg)
			return d, cmd
		}

	case tickMsg:
		if !d.done {
			return d, d.tickCmd()
		}

	case SwarmEventMsg:
		d.applyEvent(msg.Event)

	case QueueStatsMsg:
		d.queueStats = msg.Stats

	case SwarmDoneMsg:
		d.done = true
		d.stopping = false
		d.doneErr = msg.Err
		d.rows = nil
	}

	return d, nil
}

// handleKey processes keyboard input.
func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if d.done {
			d.quitting = true
			return d, tea.Quit
		}
		if d.stopping {
			// Second press while draining forces an exit.
			if msg.String() == "ctrl+c" {
				d.quitting = true
				return d, tea.Quit
			}
			return d, nil
		}
		d.stopping = true
		if d.stop == nil {
			d.done = true
			return d, nil
		}
		stop := d.stop
		return d, func() tea.Msg {
			return SwarmDoneMsg{Err: stop()}
		}
	}
	return d, nil
}

// applyEvent folds an orchestrator event into the dashboard state.
func (d *Dashboard) applyEvent(ev swarm.Event) {
	switch ev.Type {
	case swarm.EventSwarmStarted:
		d.running = true
		d.addLog(ev.Timestamp, "swarm started", false)

	case swarm.EventSwarmStopped:
		d.running = false

	case swarm.EventTaskDispatched:
		description := ""
		if d.lookup != nil {
			description = d.lookup(ev.TaskID)
		}
		d.rows = append(d.rows, executionRow{
			taskID:      ev.TaskID,
			description: description,
			startedAt:   ev.Timestamp,
		})
		d.addLog(ev.Timestamp, fmt.Sprintf("%s %s", ev.TaskID, ev.Message), false)

	case swarm.EventTaskCompleted:
		d.removeRow(ev.TaskID)
		d.completed = ev.CompletedCount
		d.succeeded++
		d.addLog(ev.Timestamp, fmt.Sprintf("%s completed", ev.TaskID), false)

	case swarm.EventTaskFailed:
		d.removeRow(ev.TaskID)
		d.completed = ev.CompletedCount
		d.failed++
		text := fmt.Sprintf("%s failed", ev.TaskID)
		if ev.Error != nil {
			text = fmt.Sprintf("%s failed: %s", ev.TaskID, ev.Error)
		}
		d.addLog(ev.Timestamp, text, true)

	case swarm.EventTaskCancelled:
		d.removeRow(ev.TaskID)
		if ev.CompletedCount > 0 {
			d.completed = ev.CompletedCount
		}
		d.cancelled++
		d.addLog(ev.Timestamp, fmt.Sprintf("%s cancelled", ev.TaskID), false)

	case swarm.EventTaskRetried:
		d.retried++
		d.addLog(ev.Timestamp, fmt.Sprintf("%s requeued for attempt %d", ev.TaskID, ev.Attempt), false)

	case swarm.EventRetriesExhausted:
		d.addLog(ev.Timestamp, fmt.Sprintf("%s exhausted its retries", ev.TaskID), true)

	case swarm.EventClaimConflict:
		d.addLog(ev.Timestamp, fmt.Sprintf("%s claim lost: %s", ev.TaskID, ev.Message), false)

	case swarm.EventTaskReady:
		d.addLog(ev.Timestamp, fmt.Sprintf("%s ready", ev.TaskID), false)

	case swarm.EventLimitReached:
		d.addLog(ev.Timestamp, fmt.Sprintf("completion limit reached (%d settled)", ev.CompletedCount), false)

	case swarm.EventAgentError:
		d.addLog(ev.Timestamp, fmt.Sprintf("%s agent error: %s", ev.TaskID, ev.Error), true)
	}
}

// addLog appends to the activity log, keeping only the most recent entries.
func (d *Dashboard) addLog(ts time.Time, text string, isError bool) {
	if ts.IsZero() {
		ts = time.Now()
	}
	d.logs = append(d.logs, logEntry{timestamp: ts, text: text, isError: isError})
	if len(d.logs) > maxLogEntries {
		d.logs = d.logs[len(d.logs)-maxLogEntries:]
	}
}

// removeRow drops a task from the active table.
func (d *Dashboard) removeRow(taskID string) {
	for i, row := range d.rows {
		if row.taskID == taskID {
			d.rows = append(d.rows[:i], d.rows[i+1:]...)
			return
		}
	}
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(d.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(d.viewActive())
	b.WriteString("\n")
	b.WriteString(d.viewLogs())
	b.WriteString("\n")
	b.WriteString(d.viewFooter())
	return b.String()
}

// viewHeader renders the title line with state, elapsed time, and counts.
func (d *Dashboard) viewHeader() string {
	title := d.styles.title.Render("abathur swarm")

	var state string
	switch {
	case d.done && d.doneErr != nil:
		state = d.styles.errored.Render("stopped: " + d.doneErr.Error())
	case d.done:
		state = d.styles.success.Render("done")
	case d.stopping:
		state = d.styles.warning.Render(d.spinner.View() + "stopping")
	case d.running:
		state = d.spinner.View() + "running"
	default:
		state = d.styles.subtle.Render("starting")
	}

	elapsed := formatDuration(time.Since(d.startTime))

	counts := d.styles.success.Render(fmt.Sprintf("✓%d", d.succeeded))
	if d.failed > 0 {
		counts += " " + d.styles.errored.Render(fmt.Sprintf("✗%d", d.failed))
	}
	if d.cancelled > 0 {
		counts += " " + d.styles.subtle.Render(fmt.Sprintf("⊘%d", d.cancelled))
	}

	line := fmt.Sprintf("%s  %s  %s  %s", title, state, elapsed, counts)

	if queue := d.formatQueue(); queue != "" {
		line += "  " + d.styles.subtle.Render(queue)
	}
	return line
}

// formatQueue summarizes waiting work from the latest queue stats.
func (d *Dashboard) formatQueue() string {
	if d.queueStats == nil {
		return ""
	}
	pending := d.queueStats[models.TaskStatusPending] + d.queueStats[models.TaskStatusReady]
	blocked := d.queueStats[models.TaskStatusBlocked]
	return fmt.Sprintf("queue: %d waiting / %d blocked", pending, blocked)
}

// viewActive renders the in-flight execution table.
func (d *Dashboard) viewActive() string {
	var b strings.Builder
	b.WriteString(d.styles.subtle.Render("Active"))
	b.WriteString("\n")

	if len(d.rows) == 0 {
		b.WriteString(d.styles.hint.Render("  no active executions"))
		b.WriteString("\n")
		return b.String()
	}

	descWidth := d.width - 26
	if descWidth < 10 {
		descWidth = 10
	}
	for _, row := range d.rows {
		elapsed := formatDuration(time.Since(row.startedAt))
		b.WriteString(fmt.Sprintf("  %s %-13s %6s  %s\n",
			d.spinner.View(),
			row.taskID,
			elapsed,
			truncate(row.description, descWidth)))
	}
	return b.String()
}

// viewLogs renders the recent activity log.
func (d *Dashboard) viewLogs() string {
	var b strings.Builder
	b.WriteString(d.styles.subtle.Render("Events"))
	b.WriteString("\n")

	if len(d.logs) == 0 {
		b.WriteString(d.styles.hint.Render("  (waiting...)"))
		b.WriteString("\n")
		return b.String()
	}

	for _, entry := range d.logs {
		ts := d.styles.hint.Render(entry.timestamp.Format("15:04:05"))
		text := entry.text
		if entry.isError {
			text = d.styles.errored.Render(text)
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", ts, text))
	}
	return b.String()
}

// viewFooter renders the keyboard hints.
func (d *Dashboard) viewFooter() string {
	switch {
	case d.done && d.doneErr != nil:
		return d.styles.errored.Render("✗ swarm stopped with an error") + d.styles.hint.Render(" │ q to exit")
	case d.done:
		return d.styles.success.Render(fmt.Sprintf("✓ %d executions settled", d.completed)) + d.styles.hint.Render(" │ q to exit")
	case d.stopping:
		return d.styles.warning.Render(fmt.Sprintf("draining %d in-flight...", len(d.rows))) + d.styles.hint.Render(" │ ctrl+c force quit")
	default:
		return d.styles.hint.Render("q stop │ ctrl+c stop")
	}
}

// truncate shortens a string to maxLen with an ellipsis.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration as MM:SS or HH:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}
