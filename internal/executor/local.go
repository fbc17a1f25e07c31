package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

const (
	// DefaultCommandTimeout bounds a single command run.
	DefaultCommandTimeout = 2 * time.Minute

	// maxOutputBytes caps captured command output before truncation.
	maxOutputBytes = 100 * 1024

	// maxReadBytes caps file reads returned to the agent.
	maxReadBytes = 256 * 1024
)

// LocalConfig configures a Local executor.
type LocalConfig struct {
	WorkingDir     string
	CommandTimeout time.Duration
}

// Local executes commands directly on the host through the shell.
type Local struct {
	workingDir string
	timeout    time.Duration
}

// NewLocal creates a Local executor, creating the working directory if it
// does not exist yet.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.WorkingDir == "" {
		return nil, fmt.Errorf("executor: working directory is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if err := os.MkdirAll(cfg.WorkingDir, 0755); err != nil {
		return nil, fmt.Errorf("executor: create working dir: %w", err)
	}
	return &Local{workingDir: cfg.WorkingDir, timeout: cfg.CommandTimeout}, nil
}

// WorkingDir returns the executor's working directory.
func (l *Local) WorkingDir() string {
	return l.workingDir
}

// RunCommand runs command through the shell with the configured timeout.
// Output is stdout and stderr combined, truncated past the cap. A non-zero
// exit is reported in the result, not as an error.
func (l *Local) RunCommand(ctx context.Context, command string) (*CommandResult, error) {
	preview := strings.ReplaceAll(command, "\n", " ")
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	L_debug("executor: running", "cmd", preview, "workDir", l.workingDir)

	execCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = l.workingDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			L_warn("executor: timed out", "cmd", preview, "timeout", l.timeout)
			return nil, fmt.Errorf("command timed out after %v", l.timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec failed: %w", err)
		}
	}

	text := output.String()
	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + "\n... (output truncated)"
	}
	L_debug("executor: completed", "cmd", preview, "exitCode", exitCode, "elapsed", elapsed, "outputLen", output.Len())

	return &CommandResult{Output: text, ExitCode: exitCode, Elapsed: elapsed}, nil
}

// ReadFile returns the file contents, truncated past the read cap.
// Relative paths resolve against the working directory.
func (l *Local) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (file truncated)", nil
	}
	return string(data), nil
}

// WriteFile writes content to path, creating parent directories as needed.
func (l *Local) WriteFile(path string, content string) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	L_debug("executor: wrote file", "path", full, "bytes", len(content))
	return nil
}

// ListDirectory lists path's entries, directories first, sorted by name.
func (l *Local) ListDirectory(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(l.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			de.Size = info.Size()
		}
		out = append(out, de)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SystemInfo describes the host in one short block for status displays.
func (l *Local) SystemInfo() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("Host: %s (%s/%s, %d CPUs)\nWorking dir: %s",
		hostname, runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), l.workingDir)
}

// resolve turns a relative path into one under the working directory.
func (l *Local) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.workingDir, path)
}
