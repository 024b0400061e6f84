package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateTool is returned by Register when a tool with the same name is
// already present. Names are unique for the lifetime of a registry instance.
var ErrDuplicateTool = errors.New("tool already registered")

// ErrToolNotFound is returned by Execute when no tool carries the requested
// name.
var ErrToolNotFound = errors.New("tool not found")

// Registry manages the collection of available tools.
// It provides thread-safe operations for registering and executing tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Registering a second tool under a
// name that is already taken fails with ErrDuplicateTool.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = tool
	return nil
}

// Unregister removes a tool by name. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Size returns the number of registered tools.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear removes all registered tools.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
}

// List returns a snapshot of all registered tool definitions.
// The order of definitions is not guaranteed.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		def := Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		}
		if st, ok := tool.(StrictTool); ok {
			def.Strict = st.Strict()
		}
		defs = append(defs, def)
	}

	return defs
}

// Execute runs the named tool with the given arguments. A missing tool fails
// with ErrToolNotFound. Anything the executor itself does wrong, including a
// panic, is captured into a failed Result; Execute never raises for a
// registered tool.
func (r *Registry) Execute(ctx context.Context, name, args string, env Env) (Result, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return runGuarded(ctx, tool, args, env), nil
}

// runGuarded invokes the tool executor and converts both returned errors and
// panics into a failed Result.
func runGuarded(ctx context.Context, tool Tool, args string, env Env) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{
				Success: false,
				Error:   fmt.Sprintf("tool panicked: %v", rec),
			}
		}
	}()

	output, err := tool.Execute(ctx, args, env)
	if err != nil {
		return Result{
			Success: false,
			Error:   err.Error(),
		}
	}

	return Result{
		Success: true,
		Output:  output,
	}
}
