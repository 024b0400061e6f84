package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/llm"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTool returns its arguments; failTool returns an error.
type echoTool struct{}

func (echoTool) Name() string                       { return "echo" }
func (echoTool) Description() string                { return "echoes its arguments" }
func (echoTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (echoTool) Execute(_ context.Context, args string, _ tools.Env) (string, error) {
	return args, nil
}

type failTool struct{}

func (failTool) Name() string                       { return "flaky" }
func (failTool) Description() string                { return "always fails" }
func (failTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (failTool) Execute(context.Context, string, tools.Env) (string, error) {
	return "", fmt.Errorf("upstream timeout")
}

type dangerTool struct{}

func (dangerTool) Name() string                       { return "send_email" }
func (dangerTool) Description() string                { return "sends an email" }
func (dangerTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (dangerTool) Execute(context.Context, string, tools.Env) (string, error) {
	return "sent", nil
}

func newTestController(t *testing.T, provider llm.Provider, cfg Config) *Controller {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	require.NoError(t, registry.Register(failTool{}))
	require.NoError(t, registry.Register(dangerTool{}))
	return New(provider, registry, nil, logger.Nop(), cfg)
}

func runningRecord() *agent.Record {
	return &agent.Record{
		ID:       "agent-1",
		TenantID: "tenant-1",
		Model:    "mock",
		Status:   agent.StatusRunning,
		History: []agent.HistoryEntry{
			&agent.UserMessage{Content: "<prompt>do work</prompt><automation_id>j1</automation_id>"},
		},
	}
}

func TestStep_MessagePauses(t *testing.T) {
	mock := llm.NewMockProvider().QueueMessage("all done")
	c := newTestController(t, mock, Config{})
	rec := runningRecord()

	res := c.Step(context.Background(), rec)

	assert.True(t, res.Processed)
	assert.Equal(t, agent.StatusRunning, res.From)
	assert.Equal(t, agent.StatusPaused, res.To)
	assert.Equal(t, agent.StatusPaused, rec.Status)

	msg, ok := rec.LastEntry().(*agent.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "all done", msg.Content)
	assert.Equal(t, 15, rec.Usage.TotalTokens)
}

func TestStep_ToolCallAwaitsTool(t *testing.T) {
	mock := llm.NewMockProvider().QueueToolCall("call-1", "echo", `{"x":1}`)
	c := newTestController(t, mock, Config{})
	rec := runningRecord()

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusAwaitingTool, res.To)

	call, ok := rec.LastEntry().(*agent.ToolCallEntry)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.CallID)
	assert.Equal(t, "echo", call.Name)
	assert.Equal(t, `{"x":1}`, call.Arguments)
}

func TestStep_ToolCallWithoutIDGetsOne(t *testing.T) {
	mock := llm.NewMockProvider().QueueToolCall("", "echo", "{}")
	c := newTestController(t, mock, Config{})
	rec := runningRecord()

	c.Step(context.Background(), rec)

	call, ok := rec.LastEntry().(*agent.ToolCallEntry)
	require.True(t, ok)
	assert.NotEmpty(t, call.CallID)
}

func TestStep_ParallelToolCallsExecuteFirstOnly(t *testing.T) {
	mock := llm.NewMockProvider().QueueToolCalls(
		llm.ToolCall{ID: "call-1", Name: "echo", Arguments: `{"x":1}`},
		llm.ToolCall{ID: "call-2", Name: "send_email", Arguments: `{"y":2}`},
	)
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	before := len(rec.History)

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusAwaitingTool, res.To)
	require.Len(t, rec.History, before+1)

	call, ok := rec.LastEntry().(*agent.ToolCallEntry)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.CallID)
	assert.Equal(t, "echo", call.Name)
}

func TestStep_HumanInLoopToolAwaitsHuman(t *testing.T) {
	mock := llm.NewMockProvider().QueueToolCall("call-1", "send_email", "{}")
	c := newTestController(t, mock, Config{HumanInLoopTools: []string{"send_email"}})
	rec := runningRecord()

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusAwaitingHuman, res.To)
	_, ok := rec.LastEntry().(*agent.ToolCallEntry)
	assert.True(t, ok, "the requested call is recorded before waiting for approval")
}

func TestStep_ProviderErrorEntersErrorState(t *testing.T) {
	mock := llm.NewMockProvider().QueueError(fmt.Errorf("rate limited"))
	c := newTestController(t, mock, Config{})
	rec := runningRecord()

	res := c.Step(context.Background(), rec)

	assert.True(t, res.Processed)
	assert.Equal(t, agent.StatusError, rec.Status)
	assert.Equal(t, "rate limited", rec.LastError)
	assert.Len(t, rec.History, 1, "history is retained unchanged on provider failure")
}

func TestStep_AwaitingToolSuccess(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	rec.Status = agent.StatusAwaitingTool
	rec.Append(&agent.ToolCallEntry{CallID: "call-1", Name: "echo", Arguments: `{"x":1}`})

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusRunning, res.To)

	result, ok := rec.LastEntry().(*agent.ToolResultEntry)
	require.True(t, ok)
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, agent.ToolResultOK, result.Status)
	assert.Equal(t, `{"x":1}`, result.Output)
	assert.Equal(t, 0, mock.CallCount(), "no model call happens while executing a tool")
}

func TestStep_AwaitingToolStructuredFailure(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	rec.Status = agent.StatusAwaitingTool
	rec.Append(&agent.ToolCallEntry{CallID: "call-1", Name: "flaky", Arguments: "{}"})

	res := c.Step(context.Background(), rec)

	// A tool that failed on its own terms goes back to the model, which may
	// retry or work around it. Only registry-level failures are fatal.
	assert.Equal(t, agent.StatusRunning, res.To)

	result, ok := rec.LastEntry().(*agent.ToolResultEntry)
	require.True(t, ok)
	assert.Equal(t, agent.ToolResultError, result.Status)
	assert.Equal(t, "upstream timeout", result.Output)
}

func TestStep_AwaitingToolUnknownTool(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	rec.Status = agent.StatusAwaitingTool
	rec.Append(&agent.ToolCallEntry{CallID: "call-1", Name: "vanished", Arguments: "{}"})

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusError, res.To)
	assert.Contains(t, rec.LastError, "vanished")
}

func TestStep_AwaitingToolMalformedHistory(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	rec.Status = agent.StatusAwaitingTool
	// Last entry is a user message, not a pending tool call.

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusError, res.To)
	assert.NotEmpty(t, rec.LastError)
}

func TestStep_ConsecutiveAssistantMessagesPause(t *testing.T) {
	mock := llm.NewMockProvider().QueueMessage("fifth")
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	for i := 0; i < 4; i++ {
		rec.Append(&agent.AssistantMessage{Content: fmt.Sprintf("thought %d", i)})
	}

	res := c.Step(context.Background(), rec)

	assert.True(t, res.Processed)
	assert.Equal(t, agent.StatusPaused, res.To)
	assert.Equal(t, 0, mock.CallCount(), "the guard fires before any model call")
	assert.Len(t, rec.History, 5, "no new message is appended by the guard")
}

func TestStep_GuardCountsOnlyTrailingRun(t *testing.T) {
	mock := llm.NewMockProvider().QueueMessage("ok")
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	for i := 0; i < 3; i++ {
		rec.Append(&agent.AssistantMessage{Content: "thought"})
	}
	rec.Append(&agent.ToolCallEntry{CallID: "c1", Name: "echo", Arguments: "{}"})
	rec.Append(&agent.ToolResultEntry{CallID: "c1", Output: "{}", Status: agent.ToolResultOK})
	for i := 0; i < 3; i++ {
		rec.Append(&agent.AssistantMessage{Content: "thought"})
	}

	res := c.Step(context.Background(), rec)

	// Six assistant messages total, but only three trailing ones; the tool
	// interaction reset the run.
	assert.Equal(t, agent.StatusPaused, res.To)
	assert.Equal(t, 1, mock.CallCount())
}

func TestStep_CustomPauseThreshold(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{MessagePauseThreshold: 2})
	rec := runningRecord()
	rec.Append(&agent.AssistantMessage{Content: "one"})
	rec.Append(&agent.AssistantMessage{Content: "two"})

	res := c.Step(context.Background(), rec)

	assert.Equal(t, agent.StatusPaused, res.To)
	assert.Equal(t, 0, mock.CallCount())
}

func TestStep_TerminalStatesUntouched(t *testing.T) {
	for _, status := range []agent.Status{agent.StatusPaused, agent.StatusAwaitingHuman, agent.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			mock := llm.NewMockProvider()
			c := newTestController(t, mock, Config{})
			rec := runningRecord()
			rec.Status = status

			res := c.Step(context.Background(), rec)

			assert.False(t, res.Processed)
			assert.Equal(t, status, rec.Status)
			assert.Equal(t, 0, mock.CallCount())
		})
	}
}

func TestStep_UnknownStatusUntouched(t *testing.T) {
	mock := llm.NewMockProvider()
	c := newTestController(t, mock, Config{})
	rec := runningRecord()
	rec.Status = agent.Status("hibernating")

	res := c.Step(context.Background(), rec)

	assert.False(t, res.Processed)
	assert.Equal(t, agent.Status("hibernating"), rec.Status)
}

func TestStep_SystemPromptAndMessageMapping(t *testing.T) {
	mock := llm.NewMockProvider().QueueMessage("done")
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	c := New(mock, registry, nil, logger.Nop(), Config{
		SystemPrompt: func(rec *agent.Record) string {
			return "You are " + rec.Name
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})

	rec := runningRecord()
	rec.Name = "⚡️ digest"
	rec.Append(&agent.ToolCallEntry{CallID: "c1", Name: "echo", Arguments: `{"x":1}`})
	rec.Append(&agent.ToolResultEntry{CallID: "c1", Output: "result", Status: agent.ToolResultOK})

	c.Step(context.Background(), rec)

	in := mock.LastInput
	assert.Equal(t, "tenant-1", in.TenantID)
	assert.Equal(t, 0.3, in.Temperature)
	assert.Equal(t, 512, in.MaxTokens)
	require.Len(t, in.Tools, 1)

	require.Len(t, in.Messages, 4)
	assert.Equal(t, llm.RoleSystem, in.Messages[0].Role)
	assert.Equal(t, "You are ⚡️ digest", in.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, in.Messages[1].Role)
	assert.Equal(t, llm.RoleAssistant, in.Messages[2].Role)
	require.Len(t, in.Messages[2].ToolCalls, 1)
	assert.Equal(t, "echo", in.Messages[2].ToolCalls[0].Name)
	assert.Equal(t, llm.RoleTool, in.Messages[3].Role)
	assert.Equal(t, "c1", in.Messages[3].ToolCallID)
}

func TestStep_ToolsReflectLiveRegistry(t *testing.T) {
	mock := llm.NewMockProvider().QueueMessage("a").QueueMessage("b")
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	c := New(mock, registry, nil, logger.Nop(), Config{})

	rec := runningRecord()
	// The record advertises a stale snapshot; the call uses the registry.
	rec.Tools = nil

	c.Step(context.Background(), rec)
	assert.Len(t, mock.LastInput.Tools, 1)

	require.NoError(t, registry.Register(dangerTool{}))
	rec.Status = agent.StatusRunning
	c.Step(context.Background(), rec)
	assert.Len(t, mock.LastInput.Tools, 2)
}
