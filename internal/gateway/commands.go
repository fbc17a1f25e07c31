package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

const helpText = `Commands:
/help - show this help
/status - show gateway status
/reset - clear this conversation
/screenshot - capture and send the screen

Anything else is sent to the agent.`

// isCommand reports whether text is a slash command.
func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// handleCommand dispatches a slash command.
func (g *Gateway) handleCommand(msg types.IncomingMessage) {
	client := g.client(msg.ClientType)
	if client == nil {
		L_error("gateway: command from unregistered client type", "clientType", msg.ClientType)
		return
	}

	fields := strings.Fields(strings.TrimSpace(msg.Text))
	command := strings.ToLower(fields[0])
	// Telegram appends the bot name to commands in groups.
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}

	L_info("gateway: command", "command", command, "channel", msg.ChannelID, "user", msg.UserName)

	var reply string
	switch command {
	case "/help", "/start":
		reply = fmt.Sprintf("Hi, I'm %s.\n\n%s", g.cfg.BotName, helpText)
	case "/status":
		reply = g.statusReport()
	case "/reset":
		reply = g.resetSession(msg)
	case "/screenshot":
		g.sendScreenshot(client, msg.ChannelID)
		return
	default:
		reply = fmt.Sprintf("Unknown command %s. Try /help.", command)
	}

	if _, err := client.SendMessage(msg.ChannelID, reply, false); err != nil {
		L_error("gateway: command reply failed", "command", command, "error", err)
	}
}

// statusReport summarizes the gateway's runtime state.
func (g *Gateway) statusReport() string {
	g.mu.Lock()
	uptime := time.Since(g.startedAt).Round(time.Second)
	clients := make([]string, 0, len(g.clients))
	for t := range g.clients {
		clients = append(clients, t)
	}
	queries := g.queries
	g.mu.Unlock()

	availability := "available"
	if !g.provider.IsAvailable() {
		availability = "unavailable"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s status\n", g.cfg.BotName)
	fmt.Fprintf(&b, "Uptime: %s\n", uptime)
	fmt.Fprintf(&b, "Agent: %s\n", availability)
	fmt.Fprintf(&b, "Clients: %s\n", strings.Join(clients, ", "))
	fmt.Fprintf(&b, "Active sessions: %d\n", g.sessions.Size())
	fmt.Fprintf(&b, "Pending approvals: %d\n", g.approvals.PendingCount())
	fmt.Fprintf(&b, "Queries handled: %d", queries)
	if g.host != nil {
		fmt.Fprintf(&b, "\n%s", g.host.SystemInfo())
	}
	return b.String()
}

// resetSession clears the channel's conversation, if there is one.
func (g *Gateway) resetSession(msg types.IncomingMessage) string {
	if !g.sessions.Has(msg.ClientType, msg.ChannelID) {
		return "No active conversation, nothing to clear."
	}
	g.sessions.Delete(msg.ClientType, msg.ChannelID)
	return "Conversation cleared. The next message starts fresh."
}

// sendScreenshot captures the screen and delivers it to the channel. The
// capture file is removed after sending.
func (g *Gateway) sendScreenshot(client MessagingClient, channelID string) {
	if g.host == nil {
		client.SendMessage(channelID, "Screenshots are not available on this host.", false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path, err := g.host.CaptureScreenshot(ctx)
	if err != nil {
		L_error("gateway: screenshot failed", "error", err)
		client.SendMessage(channelID, fmt.Sprintf("Screenshot failed: %v", err), false)
		return
	}
	if err := client.SendFile(channelID, path, "Screenshot"); err != nil {
		L_error("gateway: screenshot delivery failed", "error", err)
	}
	if err := os.Remove(path); err != nil {
		L_warn("gateway: screenshot cleanup failed", "path", path, "error", err)
	}
}
