// Package track defines the observability sink the scheduler and runner emit
// events to, with a Prometheus-backed implementation for production and a
// capturing one for tests.
package track

import "sync"

// Event names emitted by the core.
const (
	EventAutomationExecuted = "automation_executed"
	EventAutomationSkipped  = "automation_skipped"
	EventTickError          = "scheduler_tick_error"
	EventAgentTransition    = "agent_transition"
)

// Sink receives tracking events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Track(event string, props map[string]any)
}

// Noop discards all events.
type Noop struct{}

// Track implements Sink.
func (Noop) Track(string, map[string]any) {}

// Captured is one recorded event.
type Captured struct {
	Event string
	Props map[string]any
}

// Capture records events in memory for test assertions.
type Capture struct {
	mu     sync.Mutex
	events []Captured
}

// Track implements Sink.
func (c *Capture) Track(event string, props map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Captured{Event: event, Props: props})
}

// Events returns a copy of everything recorded so far.
func (c *Capture) Events() []Captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Captured, len(c.events))
	copy(out, c.events)
	return out
}

// ByEvent returns recorded events matching the given name.
func (c *Capture) ByEvent(event string) []Captured {
	var out []Captured
	for _, e := range c.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
