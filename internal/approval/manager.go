// Package approval gates sensitive operations behind an approve/reject
// workflow. Each request either auto-approves against a static policy or
// becomes a pending action that is resolved exactly once by an approval,
// a rejection, or an expiry timer, whichever fires first.
package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

// ActionType classifies what a pending action wants to do.
type ActionType string

const (
	ActionCommand      ActionType = "command"
	ActionWriteFile    ActionType = "write_file"
	ActionFolderAccess ActionType = "folder_access"
	ActionReadFile     ActionType = "read_file"
)

const (
	// DefaultTimeout is how long a pending action waits before expiring.
	DefaultTimeout = 5 * time.Minute

	// DefaultFolderTimeout is the shorter window for folder-access prompts.
	DefaultFolderTimeout = 2 * time.Minute
)

// PendingAction is one sensitive operation awaiting a decision.
type PendingAction struct {
	ID          string
	Type        ActionType
	Description string
	Details     string
	CreatedAt   time.Time
	ExpiresAt   time.Time

	decision chan bool // oneshot; buffered so resolvers never block
	timer    *time.Timer
}

// Notifier is called when an action becomes pending so a front-end can
// prompt its users. Failures are logged and never abort the request.
type Notifier func(action PendingAction) error

// NotificationType labels observability events emitted on every transition.
type NotificationType string

const (
	NotifyAutoApproved NotificationType = "auto_approved"
	NotifyPending      NotificationType = "pending"
	NotifyApproved     NotificationType = "approved"
	NotifyRejected     NotificationType = "rejected"
	NotifyExpired      NotificationType = "expired"
)

// Notification describes one approval state transition.
type Notification struct {
	Type        NotificationType
	ActionID    string
	ActionType  ActionType
	Description string
}

// Listener receives observability notifications. Listeners must not block.
type Listener func(n Notification)

// RequestOptions tunes a single approval request.
type RequestOptions struct {
	Timeout            time.Duration // 0 means the manager default
	DisableAutoApprove bool
}

// ManagerConfig configures the approval manager.
type ManagerConfig struct {
	RequireForAll       bool          // force manual approval for every type
	Timeout             time.Duration // default per-action expiry
	FolderTimeout       time.Duration // expiry for folder-access prompts
	AutoApproveCommands []string      // extra safe command patterns
}

// Manager is the registry of pending approvals.
type Manager struct {
	mu        sync.Mutex
	pending   map[string]*PendingAction
	notifiers []Notifier
	listeners []Listener

	policy  *CommandPolicy
	folders *folderGate

	requireForAll bool
	timeout       time.Duration
	folderTimeout time.Duration
}

// NewManager creates a Manager with the built-in safe-command policy plus
// any caller-registered extras.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FolderTimeout <= 0 {
		cfg.FolderTimeout = DefaultFolderTimeout
	}
	m := &Manager{
		pending:       make(map[string]*PendingAction),
		policy:        NewCommandPolicy(cfg.AutoApproveCommands),
		folders:       newFolderGate(),
		requireForAll: cfg.RequireForAll,
		timeout:       cfg.Timeout,
		folderTimeout: cfg.FolderTimeout,
	}
	L_debug("approval: manager ready",
		"requireForAll", cfg.RequireForAll,
		"timeout", cfg.Timeout.String(),
		"folderTimeout", cfg.FolderTimeout.String())
	return m
}

// RegisterNotifier adds a pending-action notifier.
func (m *Manager) RegisterNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// RegisterListener adds an observability listener.
func (m *Manager) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RequestApproval asks for permission to run a sensitive operation and
// blocks until it is approved, rejected, expired, or ctx is cancelled.
// Commands matching the auto-approve policy resolve true immediately
// without ever being registered or notified.
func (m *Manager) RequestApproval(ctx context.Context, actionType ActionType, description, details string, opts RequestOptions) bool {
	action := &PendingAction{
		ID:          uuid.New().String(),
		Type:        actionType,
		Description: description,
		Details:     details,
		CreatedAt:   time.Now(),
		decision:    make(chan bool, 1),
	}

	if !opts.DisableAutoApprove && m.autoApproves(actionType, details) {
		L_info("approval: auto-approved", "id", action.ID, "type", actionType, "description", description)
		m.notify(Notification{Type: NotifyAutoApproved, ActionID: action.ID, ActionType: actionType, Description: description})
		return true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.timeout
		if actionType == ActionFolderAccess {
			timeout = m.folderTimeout
		}
	}
	action.ExpiresAt = action.CreatedAt.Add(timeout)

	// Register and arm the expiry timer in one critical section so a
	// decision can never observe a half-registered action.
	m.mu.Lock()
	m.pending[action.ID] = action
	action.timer = time.AfterFunc(timeout, func() { m.expire(action.ID) })
	m.mu.Unlock()

	L_info("approval: pending", "id", action.ID, "type", actionType, "description", description, "timeout", timeout.String())
	m.notify(Notification{Type: NotifyPending, ActionID: action.ID, ActionType: actionType, Description: description})
	m.fanOut(*action)

	select {
	case approved := <-action.decision:
		return approved
	case <-ctx.Done():
		// Withdraw the action so a late decision is a no-op.
		m.resolve(action.ID, false, NotifyExpired)
		return false
	}
}

// Approve resolves a pending action as approved. Returns false if the id
// is unknown or already resolved.
func (m *Manager) Approve(id string) bool {
	return m.resolve(id, true, NotifyApproved)
}

// Reject resolves a pending action as rejected. Returns false if the id
// is unknown or already resolved.
func (m *Manager) Reject(id string) bool {
	return m.resolve(id, false, NotifyRejected)
}

// expire resolves a pending action as timed out.
func (m *Manager) expire(id string) {
	if m.resolve(id, false, NotifyExpired) {
		L_warn("approval: expired without decision", "id", id)
	}
}

// resolve removes the action from the registry and delivers the outcome.
// Removal and delivery happen atomically with respect to other resolvers,
// so each action resolves exactly once.
func (m *Manager) resolve(id string, approved bool, event NotificationType) bool {
	m.mu.Lock()
	action, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.pending, id)
	if action.timer != nil {
		action.timer.Stop()
	}
	m.mu.Unlock()

	action.decision <- approved
	L_info("approval: resolved", "id", id, "outcome", string(event), "type", action.Type)
	m.notify(Notification{Type: event, ActionID: id, ActionType: action.Type, Description: action.Description})
	return true
}

// GetPendingActions returns a snapshot of all pending actions, oldest first.
func (m *Manager) GetPendingActions() []PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	actions := make([]PendingAction, 0, len(m.pending))
	for _, a := range m.pending {
		actions = append(actions, *a)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
	return actions
}

// PendingCount returns the number of unresolved actions.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// autoApproves applies the static policy. Only plain commands are ever
// auto-approved; folder access and file writes always go to a human.
func (m *Manager) autoApproves(actionType ActionType, details string) bool {
	if m.requireForAll {
		return false
	}
	if actionType != ActionCommand {
		return false
	}
	return m.policy.Matches(details)
}

// fanOut invokes every notifier best-effort. One notifier failing (or
// panicking) does not block the others or abort the request.
func (m *Manager) fanOut(action PendingAction) {
	m.mu.Lock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.Unlock()

	for _, n := range notifiers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					L_error("approval: notifier panicked", "id", action.ID, "panic", r)
				}
			}()
			if err := n(action); err != nil {
				L_warn("approval: notifier failed", "id", action.ID, "error", err)
			}
		}()
	}
}

// notify emits an observability notification to all listeners.
func (m *Manager) notify(n Notification) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l(n)
	}
}
