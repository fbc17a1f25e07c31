package gateway

import (
	"fmt"
	"time"

	"github.com/sarkar-ai-taken/deskmate/internal/approval"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

// broadcastApproval pushes a pending approval prompt to every recently
// active channel. One channel failing to receive the prompt never blocks
// the others.
func (g *Gateway) broadcastApproval(action approval.PendingAction) error {
	channels := g.sessions.GetRecentChannels(broadcastWindow)
	if len(channels) == 0 {
		L_warn("gateway: approval pending but no recently active channel to ask",
			"id", action.ID, "description", action.Description)
		return fmt.Errorf("no active channels for approval prompt")
	}

	prompt := types.ApprovalPrompt{
		ActionID:    action.ID,
		ActionType:  string(action.Type),
		Description: action.Description,
		Details:     approvalDetail(action),
		ExpiresIn:   time.Until(action.ExpiresAt).Round(time.Second),
	}

	delivered := 0
	for _, ch := range channels {
		client := g.client(ch.ClientType)
		if client == nil {
			continue
		}
		p := prompt
		p.ChannelID = ch.ChannelID
		if err := client.SendApprovalPrompt(p); err != nil {
			L_warn("gateway: approval prompt failed",
				"clientType", ch.ClientType, "channel", ch.ChannelID, "error", err)
			continue
		}
		delivered++
	}

	L_info("gateway: approval broadcast", "id", action.ID, "channels", delivered)
	if delivered == 0 {
		return fmt.Errorf("approval prompt reached no channel")
	}
	return nil
}

// approvalDetail renders the action details for display, labeled by type.
func approvalDetail(action approval.PendingAction) string {
	switch action.Type {
	case approval.ActionCommand:
		return "Command: " + action.Details
	case approval.ActionWriteFile:
		return "File: " + action.Details
	case approval.ActionFolderAccess:
		return "Path: " + action.Details
	default:
		return action.Details
	}
}
