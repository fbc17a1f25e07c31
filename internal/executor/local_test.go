package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(LocalConfig{WorkingDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestRunCommandCapturesOutput(t *testing.T) {
	l := newTestExecutor(t)

	res, err := l.RunCommand(context.Background(), "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") || !strings.Contains(res.Output, "oops") {
		t.Errorf("output missing stdout or stderr: %q", res.Output)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	l := newTestExecutor(t)

	res, err := l.RunCommand(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	l, err := NewLocal(LocalConfig{WorkingDir: t.TempDir(), CommandTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if _, err := l.RunCommand(context.Background(), "sleep 5"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunCommandUsesWorkingDir(t *testing.T) {
	l := newTestExecutor(t)

	res, err := l.RunCommand(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got := strings.TrimSpace(res.Output); got != l.WorkingDir() {
		t.Errorf("pwd = %q, want %q", got, l.WorkingDir())
	}
}

func TestReadWriteFile(t *testing.T) {
	l := newTestExecutor(t)

	if err := l.WriteFile("notes/today.txt", "remember the milk"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := l.ReadFile("notes/today.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "remember the milk" {
		t.Errorf("ReadFile = %q", got)
	}

	// Relative paths resolve under the working directory.
	if _, err := os.Stat(filepath.Join(l.WorkingDir(), "notes", "today.txt")); err != nil {
		t.Errorf("file not under working dir: %v", err)
	}
}

func TestReadFileTruncates(t *testing.T) {
	l := newTestExecutor(t)

	big := strings.Repeat("x", maxReadBytes+100)
	if err := l.WriteFile("big.txt", big); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := l.ReadFile("big.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasSuffix(got, "(file truncated)") {
		t.Error("oversized read should be marked truncated")
	}
	if len(got) > maxReadBytes+100 {
		t.Errorf("truncated read still %d bytes", len(got))
	}
}

func TestListDirectory(t *testing.T) {
	l := newTestExecutor(t)

	if err := l.WriteFile("b.txt", "b"); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteFile("sub/a.txt", "a"); err != nil {
		t.Fatal(err)
	}

	entries, err := l.ListDirectory(".")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Directories sort first.
	if !entries[0].IsDir || entries[0].Name != "sub" {
		t.Errorf("first entry = %+v, want dir sub", entries[0])
	}
	if entries[1].Name != "b.txt" || entries[1].Size != 1 {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestListScreenshotsFiltersBySince(t *testing.T) {
	l := newTestExecutor(t)

	dir := filepath.Join(l.WorkingDir(), screenshotDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	oldFile := filepath.Join(dir, "screen-old.png")
	newFile := filepath.Join(dir, "screen-new.png")
	if err := os.WriteFile(oldFile, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newFile, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatal(err)
	}

	got, err := l.ListScreenshots(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListScreenshots: %v", err)
	}
	if len(got) != 1 || got[0] != newFile {
		t.Errorf("ListScreenshots = %v, want [%s]", got, newFile)
	}
}

func TestSystemInfo(t *testing.T) {
	l := newTestExecutor(t)
	info := l.SystemInfo()
	if !strings.Contains(info, l.WorkingDir()) || !strings.Contains(info, "Host:") {
		t.Errorf("SystemInfo = %q", info)
	}
}

func TestListScreenshotsMissingDir(t *testing.T) {
	l := newTestExecutor(t)
	got, err := l.ListScreenshots(time.Time{})
	if err != nil || got != nil {
		t.Errorf("missing dir should return nil, nil; got %v, %v", got, err)
	}
}
