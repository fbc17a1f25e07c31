package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestManager builds a manager with a controllable clock and a very long
// prune interval so ticks only fire when the test calls prune() directly.
func newTestManager(t *testing.T, storagePath string, idleTimeout time.Duration) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(ManagerConfig{
		IdleTimeout:   idleTimeout,
		PruneInterval: time.Hour,
		StoragePath:   storagePath,
	})
	t.Cleanup(m.Stop)

	now := time.Now()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestSetGetDelete(t *testing.T) {
	m, _ := newTestManager(t, "", time.Minute)

	if _, ok := m.Get("telegram", "42"); ok {
		t.Fatal("expected no session before Set")
	}

	m.Set("telegram", "42", "sess-abc")
	got, ok := m.Get("telegram", "42")
	if !ok || got != "sess-abc" {
		t.Fatalf("Get = (%q, %v), want (sess-abc, true)", got, ok)
	}
	if !m.Has("telegram", "42") {
		t.Error("Has should be true after Set")
	}

	// One session per channel: Set replaces.
	m.Set("telegram", "42", "sess-def")
	if got, _ := m.Get("telegram", "42"); got != "sess-def" {
		t.Errorf("after replace Get = %q, want sess-def", got)
	}
	if m.Size() != 1 {
		t.Errorf("Size = %d, want 1", m.Size())
	}

	if !m.Delete("telegram", "42") {
		t.Error("Delete should report true for existing session")
	}
	if m.Delete("telegram", "42") {
		t.Error("second Delete should report false")
	}
}

func TestSlidingExpiration(t *testing.T) {
	m, now := newTestManager(t, "", 60*time.Second)
	start := *now

	m.Set("telegram", "1", "sess-1")

	// Get at t=55s refreshes the entry.
	*now = start.Add(55 * time.Second)
	if _, ok := m.Get("telegram", "1"); !ok {
		t.Fatal("session should exist at t=55s")
	}

	// Prune tick at t=60s: idle is 5s, survives.
	*now = start.Add(60 * time.Second)
	m.prune()
	if !m.Has("telegram", "1") {
		t.Fatal("session should survive prune at t=60s after refresh")
	}

	// Prune tick at t=120s: idle is 65s, strictly exceeds 60s, evicted.
	*now = start.Add(120 * time.Second)
	m.prune()
	if m.Has("telegram", "1") {
		t.Error("session should be evicted by prune at t=120s")
	}
}

func TestPruneBoundaryIsStrict(t *testing.T) {
	m, now := newTestManager(t, "", 60*time.Second)
	start := *now

	m.Set("telegram", "1", "sess-1")

	// Idle exactly equals the timeout: not strictly exceeded, survives.
	*now = start.Add(60 * time.Second)
	m.prune()
	if !m.Has("telegram", "1") {
		t.Error("entry idle for exactly the timeout should survive")
	}
}

func TestGetRecentChannels(t *testing.T) {
	m, now := newTestManager(t, "", time.Hour)
	start := *now

	m.Set("telegram", "old", "s1")

	*now = start.Add(40 * time.Minute)
	m.Set("telegram", "new", "s2")
	m.Set("discord", "d1", "s3")

	refs := m.GetRecentChannels(30 * time.Minute)
	want := []ChannelRef{
		{ClientType: "discord", ChannelID: "d1"},
		{ClientType: "telegram", ChannelID: "new"},
	}
	if len(refs) != len(want) {
		t.Fatalf("GetRecentChannels = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}

	// A boundary entry (exactly window old) is excluded: strictly within.
	*now = start.Add(70 * time.Minute)
	refs = m.GetRecentChannels(30 * time.Minute)
	if len(refs) != 0 {
		t.Errorf("expected no recent channels at the window boundary, got %v", refs)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	m1 := NewManager(ManagerConfig{StoragePath: path, PruneInterval: time.Hour})
	m1.Set("telegram", "1", "sess-1")
	m1.Set("telegram", "2", "sess-2")
	m1.Set("discord", "3", "sess-3")
	m1.Stop()

	m2 := NewManager(ManagerConfig{StoragePath: path, PruneInterval: time.Hour})
	for _, tc := range []struct {
		clientType, channelID, want string
	}{
		{"telegram", "1", "sess-1"},
		{"telegram", "2", "sess-2"},
		{"discord", "3", "sess-3"},
	} {
		got, ok := m2.Get(tc.clientType, tc.channelID)
		if !ok || got != tc.want {
			t.Errorf("reloaded Get(%s, %s) = (%q, %v), want (%q, true)",
				tc.clientType, tc.channelID, got, ok, tc.want)
		}
	}

	// A deletion made by the second instance is gone after a further reload.
	m2.Delete("telegram", "2")
	m2.Stop()

	m3 := NewManager(ManagerConfig{StoragePath: path, PruneInterval: time.Hour})
	defer m3.Stop()
	if m3.Has("telegram", "2") {
		t.Error("deleted session should be absent after reload")
	}
	if !m3.Has("telegram", "1") || !m3.Has("discord", "3") {
		t.Error("remaining sessions should survive reload")
	}
}

func TestLoadToleratesMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	// Missing file.
	m := NewManager(ManagerConfig{StoragePath: filepath.Join(dir, "absent.json"), PruneInterval: time.Hour})
	if m.Size() != 0 {
		t.Errorf("missing file should start empty, got %d entries", m.Size())
	}
	m.Stop()

	// Corrupt file.
	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	m = NewManager(ManagerConfig{StoragePath: corrupt, PruneInterval: time.Hour})
	defer m.Stop()
	if m.Size() != 0 {
		t.Errorf("corrupt file should start empty, got %d entries", m.Size())
	}
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	blob := `{"telegram:1": {"agentSessionId": "sess-1", "lastActivity": "2026-08-30T10:00:00Z", "extra": 42}}`
	if err := os.WriteFile(path, []byte(blob), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(ManagerConfig{StoragePath: path, PruneInterval: time.Hour, IdleTimeout: 100 * 365 * 24 * time.Hour})
	defer m.Stop()
	got, ok := m.Get("telegram", "1")
	if !ok || got != "sess-1" {
		t.Errorf("Get = (%q, %v), want (sess-1, true)", got, ok)
	}
}
