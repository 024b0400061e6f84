// Package controller implements the single-step agent transition function.
// It is invoked whenever an agent record changes, performs exactly one state
// transition (model call or tool execution), and leaves persistence to the
// caller. The controller is stateless across invocations; concurrent steps
// for different records are independent.
package controller

import (
	"context"
	"fmt"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/llm"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/sanitizer"
	"github.com/danyelangel/automata/internal/tools"
	"github.com/google/uuid"
)

// DefaultMessagePauseThreshold is how many consecutive trailing assistant
// messages force a pause. It stops runaway self-dialogue loops where the
// model keeps talking to itself with no tool call or user input in between.
const DefaultMessagePauseThreshold = 4

// PromptBuilder produces the system prompt for a record. Returning an empty
// string omits the system message.
type PromptBuilder func(rec *agent.Record) string

// Config holds controller configuration.
type Config struct {
	// MessagePauseThreshold defaults to DefaultMessagePauseThreshold when zero.
	MessagePauseThreshold int

	// HumanInLoopTools names tools whose invocation must wait for human
	// approval instead of executing directly.
	HumanInLoopTools []string

	// SystemPrompt builds the system message for model calls. Optional.
	SystemPrompt PromptBuilder

	Temperature float64
	MaxTokens   int
}

// Controller drives agent records through the execution state machine.
type Controller struct {
	provider  llm.Provider
	registry  *tools.Registry
	validator *sanitizer.Validator
	logger    *logger.Logger
	hotl      map[string]struct{}
	cfg       Config
}

// New creates a controller.
func New(provider llm.Provider, registry *tools.Registry, validator *sanitizer.Validator, log *logger.Logger, cfg Config) *Controller {
	if cfg.MessagePauseThreshold == 0 {
		cfg.MessagePauseThreshold = DefaultMessagePauseThreshold
	}
	hotl := make(map[string]struct{}, len(cfg.HumanInLoopTools))
	for _, name := range cfg.HumanInLoopTools {
		hotl[name] = struct{}{}
	}
	return &Controller{
		provider:  provider,
		registry:  registry,
		validator: validator,
		logger:    log,
		hotl:      hotl,
		cfg:       cfg,
	}
}

// StepResult reports what one invocation did.
type StepResult struct {
	// Processed is false when the record was in a state the controller
	// declines to touch (paused, awaiting_human, error, or corrupted).
	Processed bool
	From      agent.Status
	To        agent.Status
}

// Step performs one state transition on the record, mutating it in place.
// The caller persists the record afterwards. All expected failures (provider
// errors, missing tools, malformed history) are expressed as transitions to
// StatusError, never as panics or returned errors.
func (c *Controller) Step(ctx context.Context, rec *agent.Record) StepResult {
	from := rec.Status

	if !rec.Status.Valid() {
		// Unreachable under normal operation; indicates external corruption.
		c.logger.WarnCtx(ctx, "Agent record has unknown status",
			logger.Field{Key: "agent_id", Value: rec.ID},
			logger.Field{Key: "status", Value: string(rec.Status)})
		return StepResult{Processed: false, From: from, To: from}
	}

	if rec.Status.Terminal() {
		return StepResult{Processed: false, From: from, To: from}
	}

	if rec.TrailingAssistantMessages() >= c.cfg.MessagePauseThreshold {
		c.logger.InfoCtx(ctx, "Pausing agent after consecutive assistant messages",
			logger.Field{Key: "agent_id", Value: rec.ID},
			logger.Field{Key: "threshold", Value: c.cfg.MessagePauseThreshold})
		rec.Status = agent.StatusPaused
		return StepResult{Processed: true, From: from, To: rec.Status}
	}

	switch rec.Status {
	case agent.StatusRunning:
		c.stepRunning(ctx, rec)
	case agent.StatusAwaitingTool:
		c.stepAwaitingTool(ctx, rec)
	}

	return StepResult{Processed: true, From: from, To: rec.Status}
}

// stepRunning calls the model provider and routes its next action.
func (c *Controller) stepRunning(ctx context.Context, rec *agent.Record) {
	in := llm.CallInput{
		TenantID:    rec.TenantID,
		Model:       rec.Model,
		Messages:    c.buildMessages(rec),
		Tools:       c.registry.List(),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	res, err := c.provider.Call(ctx, in)
	if err != nil {
		// Prior history is retained; no internal retry. A human resets the
		// status after inspection.
		c.logger.ErrorCtx(ctx, "Model call failed", err,
			logger.Field{Key: "agent_id", Value: rec.ID},
			logger.Field{Key: "model", Value: rec.Model})
		rec.Status = agent.StatusError
		rec.LastError = err.Error()
		return
	}

	rec.Usage.Add(res.Usage)

	if res.RequestsTool() {
		// One next action per step. Providers may return parallel tool
		// calls; only the first is recorded and executed.
		if len(res.ToolCalls) > 1 {
			c.logger.WarnCtx(ctx, "Provider returned parallel tool calls, executing only the first",
				logger.Field{Key: "agent_id", Value: rec.ID},
				logger.Field{Key: "dropped", Value: len(res.ToolCalls) - 1})
		}
		call := res.ToolCalls[0]
		callID := call.ID
		if callID == "" {
			callID = uuid.NewString()
		}
		rec.Append(&agent.ToolCallEntry{
			CallID:    callID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})

		if _, hotl := c.hotl[call.Name]; hotl {
			c.logger.InfoCtx(ctx, "Tool call requires human approval",
				logger.Field{Key: "agent_id", Value: rec.ID},
				logger.Field{Key: "tool", Value: call.Name})
			rec.Status = agent.StatusAwaitingHuman
		} else {
			rec.Status = agent.StatusAwaitingTool
		}
		return
	}

	rec.Append(&agent.AssistantMessage{Content: res.Content})
	rec.Status = agent.StatusPaused
}

// stepAwaitingTool executes the pending tool call via the registry.
func (c *Controller) stepAwaitingTool(ctx context.Context, rec *agent.Record) {
	call, ok := rec.LastEntry().(*agent.ToolCallEntry)
	if !ok {
		rec.Status = agent.StatusError
		rec.LastError = "awaiting_tool record has no pending tool call"
		c.logger.WarnCtx(ctx, "Malformed agent history in awaiting_tool",
			logger.Field{Key: "agent_id", Value: rec.ID})
		return
	}

	result, err := c.registry.Execute(ctx, call.Name, call.Arguments, tools.Env{
		TenantID: rec.TenantID,
		Model:    rec.Model,
		AgentID:  rec.ID,
	})
	if err != nil {
		// Registry invocation failure (e.g. unknown tool), distinct from a
		// structured tool failure.
		c.logger.ErrorCtx(ctx, "Tool invocation failed", err,
			logger.Field{Key: "agent_id", Value: rec.ID},
			logger.Field{Key: "tool", Value: call.Name})
		rec.Status = agent.StatusError
		rec.LastError = fmt.Sprintf("tool %s: %v", call.Name, err)
		return
	}

	if !result.Success {
		// Structured failure goes back to the model so it can react.
		rec.Append(&agent.ToolResultEntry{
			CallID: call.CallID,
			Output: result.Error,
			Status: agent.ToolResultError,
		})
		rec.Status = agent.StatusRunning
		return
	}

	rec.Append(&agent.ToolResultEntry{
		CallID: call.CallID,
		Output: c.wrapOutput(result.Output),
		Status: agent.ToolResultOK,
	})
	rec.Status = agent.StatusRunning
}

// wrapOutput passes tool output through the injection validator when one is
// configured.
func (c *Controller) wrapOutput(output string) string {
	if c.validator == nil {
		return output
	}
	return c.validator.WrapUntrusted(output)
}

// buildMessages converts the record's history into provider wire messages,
// prefixed with the system prompt when the builder supplies one.
func (c *Controller) buildMessages(rec *agent.Record) []llm.Message {
	messages := make([]llm.Message, 0, len(rec.History)+1)

	if c.cfg.SystemPrompt != nil {
		if prompt := c.cfg.SystemPrompt(rec); prompt != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
		}
	}

	for _, entry := range rec.History {
		switch e := entry.(type) {
		case *agent.UserMessage:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: e.Content})
		case *agent.AssistantMessage:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		case *agent.ToolCallEntry:
			messages = append(messages, llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        e.CallID,
					Name:      e.Name,
					Arguments: e.Arguments,
				}},
			})
		case *agent.ToolResultEntry:
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    e.Output,
				ToolCallID: e.CallID,
			})
		}
	}

	return messages
}
