package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

const defaultMaxTurns = 20

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	MaxTurns     int
	SystemPrompt string
}

// Anthropic drives Claude over the Messages API. Conversation histories
// live in memory, keyed by session id; they are lost on restart, which is
// why the gateway treats stale session ids as recoverable.
type Anthropic struct {
	client       *anthropic.Client
	model        string
	maxTokens    int64
	maxTurns     int
	systemPrompt string
	tools        *ToolSet

	mu        sync.Mutex
	histories map[string][]anthropic.MessageParam
}

// NewAnthropic creates the provider. tools may be nil for a pure-chat agent.
func NewAnthropic(cfg AnthropicConfig, tools *ToolSet) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model not configured")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	L_debug("agent: anthropic provider created", "model", cfg.Model, "maxTokens", cfg.MaxTokens, "maxTurns", cfg.MaxTurns)

	return &Anthropic{
		client:       &client,
		model:        cfg.Model,
		maxTokens:    int64(cfg.MaxTokens),
		maxTurns:     cfg.MaxTurns,
		systemPrompt: cfg.SystemPrompt,
		tools:        tools,
		histories:    make(map[string][]anthropic.MessageParam),
	}, nil
}

// IsAvailable reports whether the provider can serve queries.
func (a *Anthropic) IsAvailable() bool {
	return a != nil && a.client != nil
}

// Cleanup drops all conversation histories.
func (a *Anthropic) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	L_debug("agent: dropping histories", "sessions", len(a.histories))
	a.histories = make(map[string][]anthropic.MessageParam)
}

// SessionCount returns the number of live conversations.
func (a *Anthropic) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.histories)
}

// DropSession forgets one conversation.
func (a *Anthropic) DropSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.histories, sessionID)
}

// Query runs a query to completion, returning the session id and the final
// response text.
func (a *Anthropic) Query(ctx context.Context, prompt, sessionID string) (string, string, error) {
	for ev := range a.QueryStream(ctx, prompt, sessionID) {
		switch e := ev.(type) {
		case DoneEvent:
			return e.SessionID, e.Result, nil
		case ErrorEvent:
			return "", "", e.Err
		}
	}
	return "", "", fmt.Errorf("stream ended without a terminal event")
}

// QueryStream runs a query and streams its events. An empty sessionID
// starts a fresh conversation; an unknown one fails immediately with a
// session error so the caller can reset and retry.
func (a *Anthropic) QueryStream(ctx context.Context, prompt, sessionID string) <-chan Event {
	events := make(chan Event, 64)

	a.mu.Lock()
	var history []anthropic.MessageParam
	if sessionID == "" {
		sessionID = uuid.New().String()
		L_debug("agent: new session", "session", sessionID)
	} else {
		stored, ok := a.histories[sessionID]
		if !ok {
			a.mu.Unlock()
			events <- ErrorEvent{Err: fmt.Errorf("session %s not found", sessionID)}
			close(events)
			return events
		}
		history = append(history, stored...)
	}
	a.mu.Unlock()

	history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	go a.run(ctx, events, sessionID, history)
	return events
}

// run drives the query loop: stream a response, run any requested tools,
// feed results back, repeat until the model stops asking for tools.
func (a *Anthropic) run(ctx context.Context, events chan<- Event, sessionID string, history []anthropic.MessageParam) {
	defer close(events)

	start := time.Now()
	var finalText string

	for turn := 0; turn < a.maxTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
			Messages:  history,
		}
		if a.systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
		}
		if a.tools != nil {
			params.Tools = a.tools.Definitions()
		}

		L_debug("agent: request", "session", sessionID, "turn", turn, "messages", len(history))

		stream := a.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				events <- ErrorEvent{Err: fmt.Errorf("accumulate error: %w", err)}
				return
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				switch d := delta.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					finalText += d.Text
					events <- TextEvent{Text: d.Text}
				case anthropic.ThinkingDelta:
					events <- ThinkingEvent{Text: d.Thinking}
				}
			}
		}
		if err := stream.Err(); err != nil {
			L_error("agent: stream failed", "session", sessionID, "error", err)
			events <- ErrorEvent{Err: fmt.Errorf("stream error: %w", err)}
			return
		}

		history = append(history, message.ToParam())

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			input, _ := json.Marshal(toolUse.Input)
			L_info("agent: tool use", "session", sessionID, "tool", toolUse.Name)
			events <- ToolUseEvent{Name: toolUse.Name, Description: describeToolCall(toolUse.Name, input)}

			result, isErr := a.tools.Invoke(ctx, toolUse.Name, input)
			events <- ToolResultEvent{Name: toolUse.Name, IsError: isErr}
			toolResults = append(toolResults, anthropic.NewToolResultBlock(toolUse.ID, result, isErr))
		}

		if len(toolResults) == 0 {
			a.mu.Lock()
			a.histories[sessionID] = history
			a.mu.Unlock()
			L_info("agent: query completed", "session", sessionID, "turns", turn+1, "elapsed", time.Since(start).Round(time.Millisecond))
			events <- DoneEvent{SessionID: sessionID, Result: finalText}
			return
		}

		history = append(history, anthropic.NewUserMessage(toolResults...))
	}

	// History is kept so a follow-up query can continue the conversation.
	a.mu.Lock()
	a.histories[sessionID] = history
	a.mu.Unlock()
	events <- ErrorEvent{Err: fmt.Errorf("query exceeded %d turns", a.maxTurns)}
}

// describeToolCall builds a short human-readable summary of a tool call for
// progress display.
func describeToolCall(name string, input json.RawMessage) string {
	var args struct {
		Command string `json:"command"`
		Path    string `json:"path"`
	}
	json.Unmarshal(input, &args)
	switch {
	case args.Command != "":
		if len(args.Command) > 80 {
			return name + ": " + args.Command[:80] + "..."
		}
		return name + ": " + args.Command
	case args.Path != "":
		return name + ": " + args.Path
	default:
		return name
	}
}
