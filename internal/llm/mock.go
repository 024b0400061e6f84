package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a scriptable Provider implementation for tests and dry runs.
// Results are returned in the order they were queued; once the script is
// exhausted every further call fails.
type MockProvider struct {
	mu        sync.Mutex
	script    []mockStep
	index     int
	callCount int

	// LastInput captures the most recent call input for assertions.
	LastInput CallInput
}

type mockStep struct {
	result *CallResult
	err    error
}

// NewMockProvider creates an empty mock provider. Queue results with
// QueueMessage, QueueToolCall or QueueError.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// QueueMessage queues a plain assistant message result.
func (m *MockProvider) QueueMessage(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{result: &CallResult{
		Content:      content,
		FinishReason: FinishReasonStop,
		Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:        "mock",
	}})
	return m
}

// QueueToolCall queues a tool-call result for the given tool name and arguments.
func (m *MockProvider) QueueToolCall(id, name, arguments string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{result: &CallResult{
		FinishReason: FinishReasonToolCalls,
		ToolCalls:    []ToolCall{{ID: id, Name: name, Arguments: arguments}},
		Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:        "mock",
	}})
	return m
}

// QueueToolCalls queues a result carrying several parallel tool calls.
func (m *MockProvider) QueueToolCalls(calls ...ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{result: &CallResult{
		FinishReason: FinishReasonToolCalls,
		ToolCalls:    calls,
		Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:        "mock",
	}})
	return m
}

// QueueError queues a call failure.
func (m *MockProvider) QueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
	return m
}

// Call returns the next scripted result.
func (m *MockProvider) Call(_ context.Context, in CallInput) (*CallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.LastInput = in

	if m.index >= len(m.script) {
		return nil, fmt.Errorf("mock provider script exhausted after %d calls", len(m.script))
	}

	step := m.script[m.index]
	m.index++
	if step.err != nil {
		return nil, step.err
	}
	return step.result, nil
}

// DefaultModel returns the mock model name.
func (m *MockProvider) DefaultModel() string {
	return "mock"
}

// CallCount returns the number of Call invocations made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
