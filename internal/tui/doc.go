// Package tui provides the live dashboard for the run command.
//
// This package contains a simplified, read-only TUI that displays swarm
// progress in real-time:
//   - Running/stopping state with elapsed time
//   - Settled execution counts and queue totals
//   - Active executions with per-task elapsed time
//   - Activity log with recent scheduler events
//
// The TUI is read-only apart from shutdown. Pressing q (or Ctrl+C) asks the
// orchestrator to stop and drain; pressing it again after the drain exits.
//
// Usage:
//
//	program, dash := tui.NewProgram(orchestrator.Stop, lookup)
//	go forwardEvents(orchestrator.Events(), program)
//	_, err := program.Run()
//
// Events are delivered from outside via program.Send(tui.SwarmEventMsg{...});
// the run command forwards them from the orchestrator's event channel.
package tui
