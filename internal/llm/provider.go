// Package llm defines the model provider contract consumed by the agent
// execution controller, together with an OpenAI-compatible HTTP
// implementation and a mock provider for tests.
package llm

import (
	"context"

	"github.com/danyelangel/automata/internal/tools"
)

// Provider defines the interface for model providers.
type Provider interface {
	// Call sends one completion request to the provider and returns the
	// model's next action. It may fail; the caller decides how a failure
	// affects agent state.
	Call(ctx context.Context, in CallInput) (*CallResult, error)

	// DefaultModel returns the model identifier used when a request does not
	// name one.
	DefaultModel() string
}

// Role represents the role of a message sender in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in the chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID is set for RoleTool messages to identify which tool call
	// this result belongs to.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a requested tool call by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments is a JSON string containing the arguments for the tool call.
	Arguments string `json:"arguments"`
}

// Usage tracks token usage for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage report into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CallInput is the payload for one provider call.
type CallInput struct {
	TenantID    string
	Model       string
	Messages    []Message
	Tools       []tools.Definition
	Temperature float64
	MaxTokens   int
}

// FinishReason indicates why the model stopped generating tokens.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

// CallResult is the model's reported next action: either a plain message
// (Content, no ToolCalls) or one or more tool-call requests.
type CallResult struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Usage        Usage        `json:"usage"`

	// Model is the model that actually served the completion.
	Model string `json:"model"`
}

// RequestsTool reports whether the result carries at least one tool call.
func (r *CallResult) RequestsTool() bool {
	return len(r.ToolCalls) > 0
}
