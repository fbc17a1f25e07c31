package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sarkar-ai-taken/deskmate/internal/agent"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/session"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

const (
	// editThrottle bounds how often the placeholder message is edited
	// while the response streams in.
	editThrottle = 500 * time.Millisecond

	placeholderText = "Thinking..."
	emptyResultText = "(no response)"
)

// handleQuery runs one agent query for an incoming message and streams the
// response into an edited placeholder message.
func (g *Gateway) handleQuery(msg types.IncomingMessage) {
	client := g.client(msg.ClientType)
	if client == nil {
		L_error("gateway: query from unregistered client type", "clientType", msg.ClientType)
		return
	}

	if !g.provider.IsAvailable() {
		client.SendMessage(msg.ChannelID, "The agent is not available right now.", false)
		return
	}

	key := session.Key(msg.ClientType, msg.ChannelID)
	ctx, handle := g.beginQuery(key)
	defer g.endQuery(key, handle)

	queryStart := time.Now()

	placeholderID, err := client.SendMessage(msg.ChannelID, placeholderText, false)
	if err != nil {
		L_error("gateway: placeholder send failed", "channel", msg.ChannelID, "error", err)
		return
	}

	agentSessionID := ""
	if sid, ok := g.sessions.Get(msg.ClientType, msg.ChannelID); ok {
		agentSessionID = sid
	}

	var (
		text       strings.Builder
		statusLine string
		lastEdit   = time.Now()
		lastShown  string
	)

	// maybeEdit refreshes the placeholder, at most once per throttle window.
	maybeEdit := func() {
		if time.Since(lastEdit) < editThrottle {
			return
		}
		shown := text.String()
		if statusLine != "" {
			if shown != "" {
				shown += "\n\n"
			}
			shown += statusLine
		}
		if shown == "" || shown == lastShown {
			return
		}
		shown = truncate(shown, client.MaxMessageLength())
		if err := client.EditMessage(msg.ChannelID, placeholderID, shown, false); err != nil {
			L_debug("gateway: streaming edit failed", "error", err)
		}
		lastEdit = time.Now()
		lastShown = shown
	}

	for ev := range g.provider.QueryStream(ctx, msg.Text, agentSessionID) {
		switch e := ev.(type) {
		case agent.TextEvent:
			text.WriteString(e.Text)
			statusLine = ""
			maybeEdit()
		case agent.ThinkingEvent:
			if text.Len() == 0 {
				statusLine = "Thinking..."
				maybeEdit()
			}
		case agent.ToolUseEvent:
			statusLine = "Running: " + e.Description
			maybeEdit()
		case agent.ToolResultEvent:
			statusLine = ""
		case agent.DoneEvent:
			g.finishQuery(client, msg, placeholderID, e, queryStart)
		case agent.ErrorEvent:
			g.failQuery(client, msg, placeholderID, e.Err)
		}
	}
}

// finishQuery delivers the final response and any artifacts the query
// produced.
func (g *Gateway) finishQuery(client MessagingClient, msg types.IncomingMessage, placeholderID string, done agent.DoneEvent, queryStart time.Time) {
	g.sessions.Set(msg.ClientType, msg.ChannelID, done.SessionID)

	final := done.Result
	if strings.TrimSpace(final) == "" {
		final = emptyResultText
	}
	final = truncate(final, client.MaxMessageLength())

	// Rich formatting first; plain text if the client rejects the markup.
	if err := client.EditMessage(msg.ChannelID, placeholderID, final, true); err != nil {
		L_debug("gateway: rich edit failed, retrying plain", "error", err)
		if err := client.EditMessage(msg.ChannelID, placeholderID, final, false); err != nil {
			L_error("gateway: final edit failed", "channel", msg.ChannelID, "error", err)
		}
	}

	g.sendArtifacts(client, msg.ChannelID, queryStart)
	L_info("gateway: query done", "channel", msg.ChannelID, "elapsed", time.Since(queryStart).Round(time.Millisecond), "chars", len(done.Result))
}

// failQuery reports a query failure. A stale agent session is cleared so
// the next message starts a fresh conversation.
func (g *Gateway) failQuery(client MessagingClient, msg types.IncomingMessage, placeholderID string, qerr error) {
	// A cancelled query was superseded by a newer message on the channel.
	// Its placeholder stays at whatever it last showed; the replacement
	// query owns the conversation now.
	if errors.Is(qerr, context.Canceled) {
		L_debug("gateway: query cancelled", "channel", msg.ChannelID)
		return
	}

	L_error("gateway: query failed", "channel", msg.ChannelID, "error", qerr)

	var report string
	if isSessionError(qerr) {
		g.sessions.Delete(msg.ClientType, msg.ChannelID)
		report = "Our previous conversation is no longer available, so I've started a fresh one. Please send your message again."
	} else {
		report = fmt.Sprintf("Sorry, something went wrong: %v", qerr)
	}
	if err := client.EditMessage(msg.ChannelID, placeholderID, report, false); err != nil {
		L_error("gateway: failure report failed", "channel", msg.ChannelID, "error", err)
	}
}

// sendArtifacts delivers screenshots captured during the query as
// follow-up messages, then removes them from disk.
func (g *Gateway) sendArtifacts(client MessagingClient, channelID string, since time.Time) {
	if g.host == nil {
		return
	}
	paths, err := g.host.ListScreenshots(since)
	if err != nil {
		L_warn("gateway: artifact listing failed", "error", err)
		return
	}
	for _, path := range paths {
		if err := client.SendFile(channelID, path, ""); err != nil {
			L_error("gateway: artifact delivery failed", "path", path, "error", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			L_warn("gateway: artifact cleanup failed", "path", path, "error", err)
		}
	}
}

// isSessionError recognizes provider errors that mean the stored agent
// session id is no longer usable. Matching on error text is weak, but the
// provider error surface gives nothing more structured to key on.
func isSessionError(err error) bool {
	s := strings.ToLower(err.Error())
	if !strings.Contains(s, "session") {
		return false
	}
	return strings.Contains(s, "not found") ||
		strings.Contains(s, "invalid") ||
		strings.Contains(s, "expired")
}

// truncate shortens text to limit, marking the cut. A limit of zero or
// less means unlimited.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	const marker = "\n... (truncated)"
	if limit <= len(marker) {
		return text[:limit]
	}
	return text[:limit-len(marker)] + marker
}
