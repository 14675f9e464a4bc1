// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is the process exit status, or -1 when the process did not
	// exit normally.
	ExitCode int
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command with stdout and stderr captured separately.
	// A non-zero exit is reported through Result.ExitCode with a nil error;
	// the error is set only when the command could not be started or did
	// not exit normally. The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (Result, error)

	// LookPath resolves name the way Run would.
	LookPath(name string) (string, error)
}
