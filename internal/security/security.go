// Package security implements the gateway's user allowlist.
package security

import (
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

// Wildcard matches any value in either identity dimension.
const Wildcard = "*"

// UserIdentity is one allowlist entry. ClientType and PlatformUserID may
// each be the wildcard token.
type UserIdentity struct {
	ClientType     string
	PlatformUserID string
}

// Manager answers "is this (clientType, userId) pair allowed to talk to us".
// It never returns an error: absence of a match is simply false.
type Manager struct {
	allowed []UserIdentity
}

// NewManager creates a Manager from the initial allowlist.
func NewManager(allowed []UserIdentity) *Manager {
	m := &Manager{}
	for _, id := range allowed {
		m.AddUser(id)
	}
	return m
}

// IsAuthorized reports whether the pair matches any allowlist entry,
// exactly or through a wildcard in either dimension. No partial matching.
func (m *Manager) IsAuthorized(clientType, userID string) bool {
	for _, id := range m.allowed {
		if (id.ClientType == Wildcard || id.ClientType == clientType) &&
			(id.PlatformUserID == Wildcard || id.PlatformUserID == userID) {
			return true
		}
	}
	return false
}

// AddUser adds an allowlist entry. Adding an existing entry is a no-op;
// entries are never removed.
func (m *Manager) AddUser(id UserIdentity) {
	for _, existing := range m.allowed {
		if existing == id {
			return
		}
	}
	m.allowed = append(m.allowed, id)
	L_debug("security: user added", "clientType", id.ClientType, "userId", id.PlatformUserID)
}

// Count returns the number of allowlist entries.
func (m *Manager) Count() int {
	return len(m.allowed)
}
