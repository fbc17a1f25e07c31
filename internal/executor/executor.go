// Package executor runs commands and file operations on the local machine
// on behalf of the agent. Every entry point here is expected to sit behind
// an approval check; the executor itself does no gating.
package executor

import (
	"context"
	"time"
)

// CommandResult holds the outcome of one command run.
type CommandResult struct {
	Output   string // combined stdout and stderr, possibly truncated
	ExitCode int
	Elapsed  time.Duration
}

// DirEntry is one entry from a directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Executor abstracts the machine the agent operates on.
type Executor interface {
	RunCommand(ctx context.Context, command string) (*CommandResult, error)
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	ListDirectory(path string) ([]DirEntry, error)
	CaptureScreenshot(ctx context.Context) (string, error)
	WorkingDir() string
}
