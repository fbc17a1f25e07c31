// Package gateway routes messages between messaging front-ends and the AI
// agent. It owns authorization, session tracking, command dispatch, the
// streaming query loop, and approval broadcasts.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sarkar-ai-taken/deskmate/internal/agent"
	"github.com/sarkar-ai-taken/deskmate/internal/approval"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/security"
	"github.com/sarkar-ai-taken/deskmate/internal/session"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

// broadcastWindow selects which channels receive approval prompts: any
// channel with activity inside this window gets one.
const broadcastWindow = 30 * time.Minute

// MessageHandler receives every message a client delivers.
type MessageHandler func(msg types.IncomingMessage)

// MessagingClient is one chat front-end (Telegram, terminal, ...).
// Start must not block; clients run their receive loops internally.
type MessagingClient interface {
	ClientType() string
	Start(handler MessageHandler) error
	SendMessage(channelID, text string, markdown bool) (messageID string, err error)
	EditMessage(channelID, messageID, text string, markdown bool) error
	SendFile(channelID, path, caption string) error
	SendApprovalPrompt(prompt types.ApprovalPrompt) error
	UpdateApprovalStatus(channelID, actionID string, approved bool) error
	MaxMessageLength() int
	Stop()
}

// HostTools exposes the host-side extras the gateway surfaces directly:
// screenshots and a status summary.
type HostTools interface {
	CaptureScreenshot(ctx context.Context) (string, error)
	ListScreenshots(since time.Time) ([]string, error)
	SystemInfo() string
}

// GatewayConfig holds gateway settings.
type GatewayConfig struct {
	BotName    string
	WorkingDir string
}

// Gateway is the central router.
type Gateway struct {
	cfg       GatewayConfig
	security  *security.Manager
	sessions  *session.Manager
	approvals *approval.Manager
	provider  agent.Provider
	host      HostTools

	mu        sync.Mutex
	clients   map[string]MessagingClient
	active    map[string]*queryHandle
	startedAt time.Time
	queries   int64
}

// queryHandle identifies one in-flight query so a superseded query can be
// distinguished from the one that replaced it.
type queryHandle struct {
	cancel context.CancelFunc
}

// New creates a Gateway. host may be nil when host extras are unavailable.
func New(cfg GatewayConfig, sec *security.Manager, sessions *session.Manager, approvals *approval.Manager, provider agent.Provider, host HostTools) *Gateway {
	if cfg.BotName == "" {
		cfg.BotName = "Deskmate"
	}
	return &Gateway{
		cfg:       cfg,
		security:  sec,
		sessions:  sessions,
		approvals: approvals,
		provider:  provider,
		host:      host,
		clients:   make(map[string]MessagingClient),
		active:    make(map[string]*queryHandle),
	}
}

// RegisterClient adds a messaging front-end. Registering two clients with
// the same type is an error.
func (g *Gateway) RegisterClient(c MessagingClient) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clientType := c.ClientType()
	if _, exists := g.clients[clientType]; exists {
		return fmt.Errorf("client type %q already registered", clientType)
	}
	g.clients[clientType] = c
	L_info("gateway: client registered", "type", clientType)
	return nil
}

// Start begins serving. At least one client must be registered. An
// unavailable provider is a warning, not an error: clients still run and
// report the outage per message.
func (g *Gateway) Start() error {
	g.mu.Lock()
	if len(g.clients) == 0 {
		g.mu.Unlock()
		return fmt.Errorf("no messaging clients registered")
	}
	clients := make([]MessagingClient, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.startedAt = time.Now()
	g.mu.Unlock()

	if !g.provider.IsAvailable() {
		L_warn("gateway: agent provider is not available, queries will fail")
	}

	g.approvals.RegisterNotifier(g.broadcastApproval)

	for _, c := range clients {
		if err := c.Start(g.HandleMessage); err != nil {
			return fmt.Errorf("start %s client: %w", c.ClientType(), err)
		}
	}
	L_info("gateway: started", "bot", g.cfg.BotName, "clients", len(clients))
	return nil
}

// Stop cancels running queries and shuts down all clients.
func (g *Gateway) Stop() {
	g.mu.Lock()
	for key, h := range g.active {
		h.cancel()
		delete(g.active, key)
	}
	clients := make([]MessagingClient, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
	g.provider.Cleanup()
	L_info("gateway: stopped")
}

// HandleMessage is the entry point for every incoming message. Messages
// from unauthorized users are dropped without any reply.
func (g *Gateway) HandleMessage(msg types.IncomingMessage) {
	if !g.security.IsAuthorized(msg.ClientType, msg.UserID) {
		L_debug("gateway: dropped unauthorized message",
			"clientType", msg.ClientType, "userID", msg.UserID, "userName", msg.UserName)
		return
	}

	L_debug("gateway: message", "clientType", msg.ClientType, "channel", msg.ChannelID, "user", msg.UserName)

	if isCommand(msg.Text) {
		g.handleCommand(msg)
		return
	}
	g.handleQuery(msg)
}

// HandleApproval resolves a pending action from a front-end's response and
// returns a short status line for the front-end to display. The decision is
// pushed to every broadcast prompt so no channel keeps live buttons for an
// action somebody else already decided.
func (g *Gateway) HandleApproval(resp types.ApprovalResponse) string {
	var resolved bool
	var status string
	if resp.Approved {
		resolved = g.approvals.Approve(resp.ActionID)
		status = "Approved"
	} else {
		resolved = g.approvals.Reject(resp.ActionID)
		status = "Rejected"
	}
	if !resolved {
		return "Already resolved or expired"
	}
	g.updateApprovalStatus(resp.ActionID, resp.Approved)
	return status
}

// updateApprovalStatus rewrites the prompt in every channel the action was
// broadcast to. A channel that never held the prompt is a no-op for its
// client; individual failures are logged and skipped.
func (g *Gateway) updateApprovalStatus(actionID string, approved bool) {
	for _, ch := range g.sessions.GetRecentChannels(broadcastWindow) {
		client := g.client(ch.ClientType)
		if client == nil {
			continue
		}
		if err := client.UpdateApprovalStatus(ch.ChannelID, actionID, approved); err != nil {
			L_debug("gateway: approval status update failed",
				"clientType", ch.ClientType, "channel", ch.ChannelID, "error", err)
		}
	}
}

// client returns the registered client for a type, or nil.
func (g *Gateway) client(clientType string) MessagingClient {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clients[clientType]
}

// beginQuery cancels any query already running on the channel and installs
// the new one. The latest message wins.
func (g *Gateway) beginQuery(key string) (context.Context, *queryHandle) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &queryHandle{cancel: cancel}
	g.mu.Lock()
	if prev, ok := g.active[key]; ok {
		L_debug("gateway: superseding active query", "channel", key)
		prev.cancel()
	}
	g.active[key] = h
	g.queries++
	g.mu.Unlock()
	return ctx, h
}

// endQuery clears the channel's active slot unless a newer query took it.
func (g *Gateway) endQuery(key string, h *queryHandle) {
	g.mu.Lock()
	if g.active[key] == h {
		delete(g.active, key)
	}
	g.mu.Unlock()
	h.cancel()
}
