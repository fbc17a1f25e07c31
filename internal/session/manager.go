// Package session tracks per-channel agent-session continuity.
//
// Each (clientType, channelId) pair maps to at most one agent session id.
// Entries expire on a sliding idle window: every read or write refreshes
// the activity timestamp, and a background prune tick evicts entries whose
// idle time exceeds the configured timeout.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sarkar-ai-taken/deskmate/internal/config"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

const (
	// DefaultIdleTimeout is how long a session survives without activity.
	DefaultIdleTimeout = 3 * time.Hour

	// DefaultPruneInterval is how often the prune tick runs.
	DefaultPruneInterval = 10 * time.Minute
)

// Entry is one stored session. Unknown fields in the persistence file are
// tolerated on load.
type Entry struct {
	AgentSessionID string    `json:"agentSessionId"`
	LastActivity   time.Time `json:"lastActivity"`
}

// ChannelRef identifies a channel that owns a session.
type ChannelRef struct {
	ClientType string
	ChannelID  string
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	IdleTimeout   time.Duration
	PruneInterval time.Duration
	StoragePath   string // optional; empty disables persistence
}

// Manager is the session continuity store.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry // key: "clientType:channelId"
	dirty   bool              // refresh-only mutations pending persistence

	idleTimeout   time.Duration
	pruneInterval time.Duration
	storagePath   string

	now func() time.Time // swapped in tests

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager, loads any persisted state and starts the
// background prune tick. A missing or corrupt persistence file starts empty.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}

	m := &Manager{
		entries:       make(map[string]*Entry),
		idleTimeout:   cfg.IdleTimeout,
		pruneInterval: cfg.PruneInterval,
		storagePath:   cfg.StoragePath,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}

	m.load()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.prune()
			case <-m.stopCh:
				return
			}
		}
	}()

	L_info("session: manager ready",
		"idleTimeout", m.idleTimeout.String(),
		"pruneInterval", m.pruneInterval.String(),
		"persistence", m.storagePath != "",
		"loaded", m.Size())
	return m
}

// Key builds the composite persistence key for a channel.
func Key(clientType, channelID string) string {
	return fmt.Sprintf("%s:%s", clientType, channelID)
}

// Set stores the agent session id for a channel, replacing any prior one.
func (m *Manager) Set(clientType, channelID, agentSessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[Key(clientType, channelID)] = &Entry{
		AgentSessionID: agentSessionID,
		LastActivity:   m.now(),
	}
	m.persistLocked()
	L_debug("session: stored", "clientType", clientType, "channelId", channelID)
}

// Get returns the agent session id for a channel and refreshes its
// activity timestamp (sliding expiration).
func (m *Manager) Get(clientType, channelID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[Key(clientType, channelID)]
	if !ok {
		return "", false
	}
	e.LastActivity = m.now()
	m.dirty = true
	return e.AgentSessionID, true
}

// Has reports whether a channel has a session, without refreshing it.
func (m *Manager) Has(clientType, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[Key(clientType, channelID)]
	return ok
}

// Delete removes a channel's session. Returns false if none existed.
func (m *Manager) Delete(clientType, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(clientType, channelID)
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	m.persistLocked()
	L_debug("session: deleted", "clientType", clientType, "channelId", channelID)
	return true
}

// GetRecentChannels returns the channels whose last activity is strictly
// within window of now. The result is duplicate-free and sorted for
// deterministic fan-out order.
func (m *Manager) GetRecentChannels(window time.Duration) []ChannelRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var refs []ChannelRef
	for key, e := range m.entries {
		if now.Sub(e.LastActivity) < window {
			refs = append(refs, splitKey(key))
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ClientType != refs[j].ClientType {
			return refs[i].ClientType < refs[j].ClientType
		}
		return refs[i].ChannelID < refs[j].ChannelID
	})
	return refs
}

// Size returns the number of stored sessions.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop cancels the prune tick and flushes pending persistence.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		m.persistLocked()
	}
	L_debug("session: manager stopped")
}

// prune evicts every entry whose idle time strictly exceeds the timeout.
// One full scan per tick; eviction triggers a persistence write.
func (m *Manager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, e := range m.entries {
		if now.Sub(e.LastActivity) > m.idleTimeout {
			delete(m.entries, key)
			evicted++
			L_debug("session: pruned idle session", "key", key, "idle", now.Sub(e.LastActivity).String())
		}
	}
	if evicted > 0 {
		m.persistLocked()
		L_info("session: prune tick evicted sessions", "count", evicted, "remaining", len(m.entries))
	}
}

// persistLocked writes the whole session map as one JSON object.
// Caller must hold m.mu.
func (m *Manager) persistLocked() {
	m.dirty = false
	if m.storagePath == "" {
		return
	}
	if err := config.AtomicWriteJSON(m.storagePath, m.entries, 0600); err != nil {
		L_warn("session: persistence write failed", "path", m.storagePath, "error", err)
	}
}

// load reads persisted sessions. Missing or corrupt files start empty.
func (m *Manager) load() {
	if m.storagePath == "" {
		return
	}
	data, err := os.ReadFile(m.storagePath)
	if err != nil {
		if !os.IsNotExist(err) {
			L_warn("session: could not read persistence file, starting empty", "path", m.storagePath, "error", err)
		}
		return
	}
	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		L_warn("session: corrupt persistence file, starting empty", "path", m.storagePath, "error", err)
		return
	}
	m.entries = entries
	if m.entries == nil {
		m.entries = make(map[string]*Entry)
	}
}

func splitKey(key string) ChannelRef {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return ChannelRef{ClientType: key[:i], ChannelID: key[i+1:]}
		}
	}
	return ChannelRef{ChannelID: key}
}
