// Package tools implements the tool registry: a name-to-tool dispatch table
// shared by the scheduler (to advertise available tools to new agents) and the
// controller (to run the tool the model requested). Tool executors are
// externally supplied and may be unreliable network calls; the registry is the
// single chokepoint that converts "tool crashed" into "tool produced a failure
// result".
package tools

import "context"

// Tool defines the interface that all tools must implement.
// A tool represents a function that can be called by the model.
type Tool interface {
	// Name returns the unique name of the tool.
	// This name is used to identify the tool in the function calling API.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// This description helps the model understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON Schema object describing the tool's input
	// parameters, in OpenAI function calling format.
	Parameters() map[string]interface{}

	// Execute runs the tool with the provided arguments.
	// args is a JSON-encoded string containing the tool's input parameters.
	// env carries the identity of the agent run the call belongs to.
	Execute(ctx context.Context, args string, env Env) (string, error)
}

// StrictTool is an optional interface for tools that want strict schema
// validation advertised to the model provider.
type StrictTool interface {
	Tool

	// Strict reports whether the provider should enforce the parameter schema.
	Strict() bool
}

// Env carries the identity under which a tool call executes.
type Env struct {
	TenantID string
	Model    string
	AgentID  string
}

// Definition describes a registered tool in OpenAI function calling format.
// UI hints attached by individual tools are ignored here.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Strict      bool                   `json:"strict,omitempty"`
}

// Result is the outcome of a tool execution. Executor errors and panics are
// captured into a failed Result rather than propagated; callers only ever see
// a structured failure.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
