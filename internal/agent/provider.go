// Package agent connects the gateway to an AI agent backend. A provider
// owns the conversation state and exposes queries as event streams.
package agent

import "context"

// Event is one item in a query's event stream. Exactly one terminal event
// (DoneEvent or ErrorEvent) ends every stream, after which the channel is
// closed.
type Event interface {
	agentEvent()
}

// ThinkingEvent carries streamed reasoning content.
type ThinkingEvent struct {
	Text string
}

// TextEvent carries a chunk of streamed response text.
type TextEvent struct {
	Text string
}

// ToolUseEvent signals the agent started running a tool.
type ToolUseEvent struct {
	Name        string
	Description string
}

// ToolResultEvent signals a tool finished.
type ToolResultEvent struct {
	Name    string
	IsError bool
}

// DoneEvent terminates a successful query. SessionID identifies the
// conversation for follow-up queries; Result is the full response text.
type DoneEvent struct {
	SessionID string
	Result    string
}

// ErrorEvent terminates a failed query.
type ErrorEvent struct {
	Err error
}

func (ThinkingEvent) agentEvent()   {}
func (TextEvent) agentEvent()       {}
func (ToolUseEvent) agentEvent()    {}
func (ToolResultEvent) agentEvent() {}
func (DoneEvent) agentEvent()       {}
func (ErrorEvent) agentEvent()      {}

// Provider is an AI agent backend.
type Provider interface {
	// QueryStream runs a query against the session identified by sessionID,
	// or starts a new session when sessionID is empty. The returned channel
	// delivers events until a terminal event, then closes.
	QueryStream(ctx context.Context, prompt, sessionID string) <-chan Event

	// Query runs a query to completion and returns the session id and the
	// final response text.
	Query(ctx context.Context, prompt, sessionID string) (string, string, error)

	// IsAvailable reports whether the provider is configured and usable.
	IsAvailable() bool

	// Cleanup releases conversation state.
	Cleanup()
}
