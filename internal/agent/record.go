// Package agent defines the persisted state of one autonomous worker: the
// record mutated by the execution controller and the sum-typed history it
// appends to.
package agent

import (
	"time"

	"github.com/danyelangel/automata/internal/llm"
	"github.com/danyelangel/automata/internal/tools"
)

// Status is the execution state of an agent record.
type Status string

const (
	StatusRunning       Status = "running"
	StatusAwaitingTool  Status = "awaiting_tool"
	StatusAwaitingHuman Status = "awaiting_human"
	StatusPaused        Status = "paused"
	StatusError         Status = "error"
)

// Valid reports whether s is one of the five defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusAwaitingTool, StatusAwaitingHuman, StatusPaused, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the controller declines to process the record
// until an external actor changes its status.
func (s Status) Terminal() bool {
	return s == StatusPaused || s == StatusAwaitingHuman || s == StatusError
}

// Record is one running instance of an autonomous worker. It is created by
// the scheduler (or an external caller) and mutated exclusively by the
// controller; history is append-only within a single controller step.
type Record struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	Model     string             `json:"model"`
	Name      string             `json:"name"`
	Status    Status             `json:"status"`
	Tools     []tools.Definition `json:"tools,omitempty"`
	Context   []string           `json:"context,omitempty"`
	History   []HistoryEntry     `json:"history"`
	JobID     string             `json:"job_id,omitempty"`
	Usage     llm.Usage          `json:"usage"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// LastEntry returns the most recent history entry, or nil for an empty history.
func (r *Record) LastEntry() HistoryEntry {
	if len(r.History) == 0 {
		return nil
	}
	return r.History[len(r.History)-1]
}

// Append adds an entry to the record's history.
func (r *Record) Append(entry HistoryEntry) {
	r.History = append(r.History, entry)
}

// TrailingAssistantMessages counts how many entries at the end of the history
// are consecutive assistant messages.
func (r *Record) TrailingAssistantMessages() int {
	count := 0
	for i := len(r.History) - 1; i >= 0; i-- {
		if _, ok := r.History[i].(*AssistantMessage); !ok {
			break
		}
		count++
	}
	return count
}
