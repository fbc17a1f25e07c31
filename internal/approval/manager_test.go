package approval

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(cfg ManagerConfig) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.FolderTimeout == 0 {
		cfg.FolderTimeout = time.Second
	}
	return NewManager(cfg)
}

// approveOnNotify installs a notifier that resolves every action with the
// given outcome and returns a counter of how many prompts were delivered.
func approveOnNotify(m *Manager, approved bool) *atomic.Int32 {
	var count atomic.Int32
	m.RegisterNotifier(func(a PendingAction) error {
		count.Add(1)
		go func() {
			if approved {
				m.Approve(a.ID)
			} else {
				m.Reject(a.ID)
			}
		}()
		return nil
	})
	return &count
}

func TestAutoApproveSafeCommand(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	prompts := approveOnNotify(m, false)

	var events []NotificationType
	m.RegisterListener(func(n Notification) { events = append(events, n.Type) })

	if !m.RequestApproval(context.Background(), ActionCommand, "run command", "ls -la", RequestOptions{}) {
		t.Fatal("safe command should auto-approve")
	}
	if got := prompts.Load(); got != 0 {
		t.Errorf("auto-approved action reached a notifier %d times", got)
	}
	if m.PendingCount() != 0 {
		t.Errorf("auto-approved action left %d pending entries", m.PendingCount())
	}
	if len(events) != 1 || events[0] != NotifyAutoApproved {
		t.Errorf("events = %v, want [auto_approved]", events)
	}
}

func TestRequireForAllDisablesAutoApprove(t *testing.T) {
	m := newTestManager(ManagerConfig{RequireForAll: true})
	prompts := approveOnNotify(m, true)

	if !m.RequestApproval(context.Background(), ActionCommand, "run command", "ls", RequestOptions{}) {
		t.Fatal("approved action should resolve true")
	}
	if prompts.Load() != 1 {
		t.Errorf("expected 1 prompt with RequireForAll, got %d", prompts.Load())
	}
}

func TestRejectResolvesFalse(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	approveOnNotify(m, false)

	if m.RequestApproval(context.Background(), ActionCommand, "run command", "rm -rf build", RequestOptions{}) {
		t.Fatal("rejected action should resolve false")
	}
	if m.PendingCount() != 0 {
		t.Errorf("rejected action left %d pending entries", m.PendingCount())
	}
}

func TestWriteFileNeverAutoApproves(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	prompts := approveOnNotify(m, true)

	if !m.RequestApproval(context.Background(), ActionWriteFile, "write notes.txt", "/tmp/notes.txt", RequestOptions{}) {
		t.Fatal("approved write should resolve true")
	}
	if prompts.Load() != 1 {
		t.Errorf("write_file should always prompt, got %d prompts", prompts.Load())
	}
}

func TestExpiry(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	var expired atomic.Bool
	m.RegisterListener(func(n Notification) {
		if n.Type == NotifyExpired {
			expired.Store(true)
		}
	})

	start := time.Now()
	ok := m.RequestApproval(context.Background(), ActionCommand, "run command", "make deploy",
		RequestOptions{Timeout: 50 * time.Millisecond})
	if ok {
		t.Fatal("expired action should resolve false")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("resolved after %v, before the timeout", elapsed)
	}
	if !expired.Load() {
		t.Error("no expired notification emitted")
	}
	if m.PendingCount() != 0 {
		t.Errorf("expired action left %d pending entries", m.PendingCount())
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	actionID := make(chan string, 1)
	m.RegisterNotifier(func(a PendingAction) error {
		actionID <- a.ID
		return nil
	})

	result := make(chan bool, 1)
	go func() {
		result <- m.RequestApproval(context.Background(), ActionCommand, "run command", "rm old.log", RequestOptions{})
	}()

	id := <-actionID

	// Race many approves and rejects; exactly one may win.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			var won bool
			if approve {
				won = m.Approve(id)
			} else {
				won = m.Reject(id)
			}
			if won {
				wins.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("action resolved %d times, want exactly once", wins.Load())
	}
	<-result
	if m.Approve(id) {
		t.Error("Approve on a resolved action should return false")
	}
}

func TestApproveUnknownID(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	if m.Approve("no-such-action") {
		t.Error("Approve on unknown id should return false")
	}
	if m.Reject("no-such-action") {
		t.Error("Reject on unknown id should return false")
	}
}

func TestContextCancellationWithdraws(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	m.RegisterNotifier(func(a PendingAction) error {
		cancel()
		return nil
	})

	if m.RequestApproval(ctx, ActionCommand, "run command", "shutdown now", RequestOptions{}) {
		t.Fatal("cancelled request should resolve false")
	}
	if m.PendingCount() != 0 {
		t.Errorf("cancelled action left %d pending entries", m.PendingCount())
	}
}

func TestNotifierPanicDoesNotAbort(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	m.RegisterNotifier(func(a PendingAction) error {
		panic("bad notifier")
	})
	approveOnNotify(m, true)

	if !m.RequestApproval(context.Background(), ActionCommand, "run command", "touch a", RequestOptions{}) {
		t.Fatal("a panicking notifier should not abort the request")
	}
}

func TestGetPendingActionsOrdered(t *testing.T) {
	m := newTestManager(ManagerConfig{Timeout: time.Minute})

	ready := make(chan struct{}, 2)
	m.RegisterNotifier(func(a PendingAction) error {
		ready <- struct{}{}
		return nil
	})

	go m.RequestApproval(context.Background(), ActionCommand, "first", "rm a", RequestOptions{})
	<-ready
	time.Sleep(5 * time.Millisecond)
	go m.RequestApproval(context.Background(), ActionWriteFile, "second", "/tmp/b", RequestOptions{})
	<-ready

	actions := m.GetPendingActions()
	if len(actions) != 2 {
		t.Fatalf("pending = %d, want 2", len(actions))
	}
	if actions[0].Description != "first" || actions[1].Description != "second" {
		t.Errorf("actions out of order: %q, %q", actions[0].Description, actions[1].Description)
	}
	for _, a := range actions {
		m.Reject(a.ID)
	}
}
