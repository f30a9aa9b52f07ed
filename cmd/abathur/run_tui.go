package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/odgrim/abathur-swarm-sub016/internal/audit"
	"github.com/odgrim/abathur-swarm-sub016/internal/store"
	"github.com/odgrim/abathur-swarm-sub016/internal/swarm"
	"github.com/odgrim/abathur-swarm-sub016/internal/tui"
)

// queueStatsInterval is how often the dashboard's queue counters refresh.
const queueStatsInterval = time.Second

// runSwarmTUI runs the swarm behind a live dashboard. It returns once the
// swarm has finished and the user has quit the TUI.
func runSwarmTUI(ctx context.Context, orch *swarm.Orchestrator, db *store.DB, auditStore *audit.Store, logger *swarm.DebugLogger, limit int) (retErr error) {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runSwarmTUI: %v", r)
		}
	}()

	lookup := func(taskID string) string {
		task, err := db.GetTask(taskID)
		if err != nil {
			return ""
		}
		return task.Description
	}
	program, _ := tui.NewProgram(orch.Stop, lookup)

	go forwardEventsToTUI(program, orch.Events(), auditStore, logger)
	go pollQueueStats(ctx, program, orch)

	// Start the swarm in the background
	orchDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				orchDone <- fmt.Errorf("PANIC in swarm: %v", r)
			}
		}()
		orchDone <- orch.Start(ctx, limit)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				tuiDone <- fmt.Errorf("PANIC in TUI: %v", r)
			}
		}()
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case err := <-orchDone:
		// Swarm finished first. Tell the dashboard and wait for the user
		// to quit so they can read the final state.
		program.Send(tui.SwarmDoneMsg{Err: err})
		<-tuiDone
		return err

	case err := <-tuiDone:
		// TUI exited first (force quit). Stop the swarm before returning.
		stopErr := orch.Stop()
		<-orchDone
		if err != nil {
			return err
		}
		return stopErr
	}
}

// forwardEventsToTUI converts swarm events to dashboard messages and feeds
// the audit trail along the way.
func forwardEventsToTUI(program *tea.Program, events <-chan swarm.Event, auditStore *audit.Store, logger *swarm.DebugLogger) {
	for ev := range events {
		program.Send(tui.SwarmEventMsg{Event: ev})
		recordAuditEvent(auditStore, logger, ev)
	}
}

// pollQueueStats periodically pushes queue counters to the dashboard.
func pollQueueStats(ctx context.Context, program *tea.Program, orch *swarm.Orchestrator) {
	ticker := time.NewTicker(queueStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := orch.Status()
			if err != nil {
				continue
			}
			program.Send(tui.QueueStatsMsg{Stats: status.QueueStats})
		}
	}
}
