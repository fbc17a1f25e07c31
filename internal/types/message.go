// Package types holds the wire types shared between the gateway and the
// messaging front-ends.
package types

import "time"

// IncomingMessage is a user message delivered by a messaging client.
type IncomingMessage struct {
	ClientType string `json:"clientType"` // "telegram", "discord", ...
	ChannelID  string `json:"channelId"`  // platform conversation id
	UserID     string `json:"userId"`     // platform user id
	UserName   string `json:"userName,omitempty"`
	Text       string `json:"text"`
}

// ApprovalPrompt asks a channel to approve or reject a pending action.
type ApprovalPrompt struct {
	ChannelID   string        `json:"channelId"`
	ActionID    string        `json:"actionId"`
	ActionType  string        `json:"actionType"`
	Description string        `json:"description"`
	Details     string        `json:"details"`
	ExpiresIn   time.Duration `json:"expiresIn"`
}

// ApprovalResponse is a user's decision on a pending action.
type ApprovalResponse struct {
	ActionID string `json:"actionId"`
	Approved bool   `json:"approved"`
}
