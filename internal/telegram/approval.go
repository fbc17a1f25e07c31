package telegram

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

const (
	approveUnique = "dm_approve"
	rejectUnique  = "dm_reject"

	// promptRetention bounds how long an undelivered decision can still
	// find its prompt message. Stale entries are dropped on insert.
	promptRetention = time.Hour
)

// SendApprovalPrompt posts an approval request with inline Approve/Reject
// buttons. The callback payload carries the action id; the sent message is
// remembered so the decision can rewrite it later.
func (b *Bot) SendApprovalPrompt(prompt types.ApprovalPrompt) error {
	chat, err := chatFor(prompt.ChannelID)
	if err != nil {
		return err
	}

	markup := &tele.ReplyMarkup{}
	btnApprove := markup.Data("Approve", approveUnique, prompt.ActionID)
	btnReject := markup.Data("Reject", rejectUnique, prompt.ActionID)
	markup.Inline(markup.Row(btnApprove, btnReject))

	text := fmt.Sprintf("Approval needed: %s\n%s\nExpires in %s",
		prompt.Description, prompt.Details, prompt.ExpiresIn.Round(time.Second))

	msg, err := b.bot.Send(chat, text, markup)
	if err != nil {
		return fmt.Errorf("telegram approval prompt: %w", err)
	}

	b.mu.Lock()
	for key, p := range b.prompts {
		if time.Since(p.at) > promptRetention {
			delete(b.prompts, key)
		}
	}
	b.prompts[promptKey(prompt.ChannelID, prompt.ActionID)] = sentPrompt{msg: msg, at: time.Now()}
	b.mu.Unlock()

	L_debug("telegram: approval prompt sent", "channel", prompt.ChannelID, "action", prompt.ActionID)
	return nil
}

// UpdateApprovalStatus rewrites a delivered prompt with the decision and
// strips its buttons. A channel that never held the prompt is a no-op.
func (b *Bot) UpdateApprovalStatus(channelID, actionID string, approved bool) error {
	key := promptKey(channelID, actionID)

	b.mu.Lock()
	p, ok := b.prompts[key]
	delete(b.prompts, key)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	status := "Rejected"
	if approved {
		status = "Approved"
	}
	if _, err := b.bot.Edit(p.msg, p.msg.Text+"\n\n"+status); err != nil {
		return fmt.Errorf("telegram approval status: %w", err)
	}
	L_debug("telegram: approval prompt updated", "channel", channelID, "action", actionID, "status", status)
	return nil
}

func promptKey(channelID, actionID string) string {
	return channelID + ":" + actionID
}

// handleApprovalCallback resolves the action. The prompt rewrite happens
// through UpdateApprovalStatus, fanned out to every channel that holds the
// prompt; here only the button press itself is acknowledged.
func (b *Bot) handleApprovalCallback(approved bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		actionID := c.Data()
		if actionID == "" || b.approvals == nil {
			return c.Respond()
		}

		status := b.approvals(types.ApprovalResponse{ActionID: actionID, Approved: approved})
		L_info("telegram: approval response", "action", actionID, "approved", approved, "status", status)

		return c.Respond(&tele.CallbackResponse{Text: status})
	}
}
