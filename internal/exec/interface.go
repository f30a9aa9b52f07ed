// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"time"
)

// Result captures the outcome of a finished command.
type Result struct {
	// Output is the combined stdout/stderr of the command.
	Output []byte
	// ExitCode is the command's exit status. Zero means success.
	ExitCode int
	// Duration is how long the command ran.
	Duration time.Duration
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
//
// A non-zero exit status is not an error: it comes back in Result.ExitCode
// with a nil error. The error return is reserved for commands that could not
// run at all (missing binary, context cancelled before exit).
type CommandRunner interface {
	// Run executes a command and returns its combined output and exit code.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (*Result, error)

	// RunWithEnv executes a command with extra environment variables
	// appended to the parent environment.
	RunWithEnv(ctx context.Context, workDir string, env []string, name string, args ...string) (*Result, error)

	// RunShell executes a shell command through "sh -c".
	// This is a convenience method for running complex shell commands.
	RunShell(ctx context.Context, workDir string, command string) (*Result, error)
}
