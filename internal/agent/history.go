package agent

import (
	"encoding/json"
	"fmt"
)

// EntryKind tags a history entry variant.
type EntryKind string

const (
	KindUserMessage      EntryKind = "user_message"
	KindAssistantMessage EntryKind = "assistant_message"
	KindToolCall         EntryKind = "tool_call"
	KindToolResult       EntryKind = "tool_result"
)

// ToolResultStatus reports how a tool call turned out.
type ToolResultStatus string

const (
	ToolResultOK    ToolResultStatus = "ok"
	ToolResultError ToolResultStatus = "error"
)

// HistoryEntry is a closed sum over the four entry variants. Each variant
// carries exactly the fields that are legal for it; a tool result without a
// correlation id is unrepresentable.
type HistoryEntry interface {
	Kind() EntryKind
}

// UserMessage is input from a human or a synthetic scheduler prompt.
type UserMessage struct {
	Content string `json:"content"`
}

func (*UserMessage) Kind() EntryKind { return KindUserMessage }

// AssistantMessage is a plain text reply from the model.
type AssistantMessage struct {
	Content string `json:"content"`
}

func (*AssistantMessage) Kind() EntryKind { return KindAssistantMessage }

// ToolCallEntry is a tool invocation requested by the model.
type ToolCallEntry struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (*ToolCallEntry) Kind() EntryKind { return KindToolCall }

// ToolResultEntry is the outcome of a tool invocation, correlated to its call.
type ToolResultEntry struct {
	CallID string           `json:"call_id"`
	Output string           `json:"output"`
	Status ToolResultStatus `json:"status"`
}

func (*ToolResultEntry) Kind() EntryKind { return KindToolResult }

// historyEnvelope is the persisted form of any entry.
type historyEnvelope struct {
	Kind      EntryKind        `json:"kind"`
	Content   string           `json:"content,omitempty"`
	CallID    string           `json:"call_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Arguments string           `json:"arguments,omitempty"`
	Output    string           `json:"output,omitempty"`
	Status    ToolResultStatus `json:"status,omitempty"`
}

// MarshalHistory encodes a history as a JSON array of tagged envelopes.
func MarshalHistory(history []HistoryEntry) ([]byte, error) {
	envelopes := make([]historyEnvelope, 0, len(history))
	for i, entry := range history {
		switch e := entry.(type) {
		case *UserMessage:
			envelopes = append(envelopes, historyEnvelope{Kind: KindUserMessage, Content: e.Content})
		case *AssistantMessage:
			envelopes = append(envelopes, historyEnvelope{Kind: KindAssistantMessage, Content: e.Content})
		case *ToolCallEntry:
			envelopes = append(envelopes, historyEnvelope{Kind: KindToolCall, CallID: e.CallID, Name: e.Name, Arguments: e.Arguments})
		case *ToolResultEntry:
			envelopes = append(envelopes, historyEnvelope{Kind: KindToolResult, CallID: e.CallID, Output: e.Output, Status: e.Status})
		default:
			return nil, fmt.Errorf("unknown history entry type at index %d: %T", i, entry)
		}
	}
	return json.Marshal(envelopes)
}

// UnmarshalHistory decodes a JSON array of tagged envelopes back into entries.
func UnmarshalHistory(data []byte) ([]HistoryEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var envelopes []historyEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	history := make([]HistoryEntry, 0, len(envelopes))
	for i, env := range envelopes {
		switch env.Kind {
		case KindUserMessage:
			history = append(history, &UserMessage{Content: env.Content})
		case KindAssistantMessage:
			history = append(history, &AssistantMessage{Content: env.Content})
		case KindToolCall:
			history = append(history, &ToolCallEntry{CallID: env.CallID, Name: env.Name, Arguments: env.Arguments})
		case KindToolResult:
			history = append(history, &ToolResultEntry{CallID: env.CallID, Output: env.Output, Status: env.Status})
		default:
			return nil, fmt.Errorf("unknown history entry kind at index %d: %q", i, env.Kind)
		}
	}
	return history, nil
}
