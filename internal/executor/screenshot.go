package executor

import (
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

// screenshotDirName is the subdirectory under the working directory where
// captures land.
const screenshotDirName = "screenshots"

// CaptureScreenshot grabs the current screen and returns the saved file
// path. The capture tool depends on the platform; on Linux the first
// available of gnome-screenshot, scrot, or ImageMagick's import is used.
func (l *Local) CaptureScreenshot(ctx context.Context) (string, error) {
	dir := filepath.Join(l.workingDir, screenshotDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	outPath := filepath.Join(dir, fmt.Sprintf("screen-%s.png", time.Now().Format("20060102-150405")))

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "screencapture", "-x", outPath)
	case "linux":
		switch {
		case commandExists("gnome-screenshot"):
			cmd = exec.CommandContext(ctx, "gnome-screenshot", "-f", outPath)
		case commandExists("scrot"):
			cmd = exec.CommandContext(ctx, "scrot", outPath)
		case commandExists("import"):
			cmd = exec.CommandContext(ctx, "import", "-window", "root", outPath)
		default:
			return "", fmt.Errorf("screenshot: no capture tool found (need gnome-screenshot, scrot, or import)")
		}
	default:
		return "", fmt.Errorf("screenshot: unsupported platform %s", runtime.GOOS)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("screenshot: %s failed: %w (%s)", cmd.Path, err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("screenshot: capture produced no file: %w", err)
	}
	L_info("executor: screenshot captured", "path", outPath)
	return outPath, nil
}

// ListScreenshots returns capture files modified after since, oldest first.
func (l *Local) ListScreenshots(since time.Time) ([]string, error) {
	dir := filepath.Join(l.workingDir, screenshotDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	type stamped struct {
		path string
		mod  time.Time
	}
	var found []stamped
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().After(since) {
			continue
		}
		found = append(found, stamped{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
