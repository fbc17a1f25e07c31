package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

// protectedFolders lists directories that need explicit permission before
// the agent may read or write inside them. Entries are absolute after
// home expansion.
func protectedFolders() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	var folders []string
	switch runtime.GOOS {
	case "darwin":
		folders = []string{
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
			filepath.Join(home, "Downloads"),
			filepath.Join(home, "Pictures"),
			filepath.Join(home, "Library"),
			filepath.Join(home, ".ssh"),
		}
	case "windows":
		folders = []string{
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
			filepath.Join(home, "Downloads"),
		}
	default:
		folders = []string{
			filepath.Join(home, "Documents"),
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			"/etc",
			"/root/.ssh",
		}
	}
	return folders
}

// folderGate tracks which protected folders the user already granted.
// Grants live in memory only and reset on restart.
type folderGate struct {
	mu        sync.Mutex
	protected []string
	approved  map[string]bool
}

func newFolderGate() *folderGate {
	return &folderGate{
		protected: protectedFolders(),
		approved:  make(map[string]bool),
	}
}

// protectedBase returns the protected folder containing path, or "" when
// the path is unrestricted.
func (g *folderGate) protectedBase(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)
	for _, base := range g.protected {
		if base == "" {
			continue
		}
		if abs == base || strings.HasPrefix(abs, base+string(filepath.Separator)) {
			return base
		}
	}
	return ""
}

func (g *folderGate) isApproved(base string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approved[base]
}

func (g *folderGate) grant(base string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved[base] = true
}

// RequestFolderAccess checks whether path falls inside a protected folder
// and, if so, asks for permission. Approval is scoped to the whole
// protected folder, so later paths under the same base pass without a
// second prompt. Folder prompts use the shorter folder timeout and are
// never auto-approved.
func (m *Manager) RequestFolderAccess(ctx context.Context, path string) bool {
	base := m.folders.protectedBase(path)
	if base == "" {
		return true
	}
	if m.folders.isApproved(base) {
		L_trace("approval: folder already granted", "folder", base)
		return true
	}

	ok := m.RequestApproval(ctx, ActionFolderAccess,
		fmt.Sprintf("Access protected folder %s", base),
		path,
		RequestOptions{DisableAutoApprove: true})
	if ok {
		m.folders.grant(base)
		L_info("approval: folder access granted", "folder", base)
	}
	return ok
}

// ApprovedFolders returns the protected folders granted so far.
func (m *Manager) ApprovedFolders() []string {
	m.folders.mu.Lock()
	defer m.folders.mu.Unlock()
	out := make([]string, 0, len(m.folders.approved))
	for base := range m.folders.approved {
		out = append(out, base)
	}
	return out
}
