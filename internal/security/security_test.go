package security

import "testing"

func TestIsAuthorized(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []UserIdentity
		clientType string
		userID     string
		want       bool
	}{
		{"empty allowlist", nil, "telegram", "123", false},
		{"exact match", []UserIdentity{{"telegram", "123"}}, "telegram", "123", true},
		{"wrong user", []UserIdentity{{"telegram", "123"}}, "telegram", "456", false},
		{"wrong client", []UserIdentity{{"telegram", "123"}}, "discord", "123", false},
		{"wildcard user", []UserIdentity{{"telegram", "*"}}, "telegram", "anyone", true},
		{"wildcard user wrong client", []UserIdentity{{"telegram", "*"}}, "discord", "anyone", false},
		{"wildcard client", []UserIdentity{{"*", "123"}}, "discord", "123", true},
		{"wildcard client wrong user", []UserIdentity{{"*", "123"}}, "discord", "456", false},
		{"full wildcard", []UserIdentity{{"*", "*"}}, "anything", "anyone", true},
		{"no partial match", []UserIdentity{{"telegram", "123"}}, "telegram", "12", false},
		{"second entry matches", []UserIdentity{{"telegram", "123"}, {"discord", "789"}}, "discord", "789", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.allowed)
			if got := m.IsAuthorized(tt.clientType, tt.userID); got != tt.want {
				t.Errorf("IsAuthorized(%q, %q) = %v, want %v", tt.clientType, tt.userID, got, tt.want)
			}
		})
	}
}

func TestAddUserIdempotent(t *testing.T) {
	m := NewManager(nil)
	id := UserIdentity{ClientType: "telegram", PlatformUserID: "123"}

	m.AddUser(id)
	m.AddUser(id)
	m.AddUser(id)

	if m.Count() != 1 {
		t.Errorf("expected 1 entry after repeated AddUser, got %d", m.Count())
	}
	if !m.IsAuthorized("telegram", "123") {
		t.Error("added user should be authorized")
	}
}

func TestAddUserGrantsAccess(t *testing.T) {
	m := NewManager([]UserIdentity{{"telegram", "123"}})

	if m.IsAuthorized("discord", "999") {
		t.Fatal("unexpected authorization before AddUser")
	}
	m.AddUser(UserIdentity{ClientType: "discord", PlatformUserID: "999"})
	if !m.IsAuthorized("discord", "999") {
		t.Error("expected authorization after AddUser")
	}
}
