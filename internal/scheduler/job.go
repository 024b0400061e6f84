// Package scheduler implements the automation batch scheduler: on every
// external tick it evaluates all enabled jobs against the skip-check
// pipeline and, for each eligible one, stages a new agent record plus the
// job's run bookkeeping into a single atomic batch.
package scheduler

import (
	"fmt"
	"time"
)

// Frequency is a job cadence token. Jobs are either one-shot or recur on a
// fixed interval; there is no cron-expression parsing here, the scheduler is
// invoked externally on its own cadence and processes whatever is due.
type Frequency string

const (
	FreqOnce    Frequency = "once"
	Freq5Min    Frequency = "5min"
	Freq15Min   Frequency = "15min"
	Freq30Min   Frequency = "30min"
	FreqHourly  Frequency = "hourly"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// ParseFrequency validates a raw cadence token from external input.
func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(raw); f {
	case FreqOnce, Freq5Min, Freq15Min, Freq30Min, FreqHourly, FreqDaily, FreqWeekly, FreqMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", raw)
	}
}

// intervalFor maps a frequency token to its implied interval. Unknown tokens
// deliberately fall back to the daily interval instead of failing: the
// scheduler must never crash on unrecognized but enabled job data.
func intervalFor(f Frequency) time.Duration {
	switch f {
	case Freq5Min:
		return 5 * time.Minute
	case Freq15Min:
		return 15 * time.Minute
	case Freq30Min:
		return 30 * time.Minute
	case FreqHourly:
		return time.Hour
	case FreqDaily:
		return 24 * time.Hour
	case FreqWeekly:
		return 7 * 24 * time.Hour
	case FreqMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Job is a recurring or one-shot task definition. It is created and updated
// externally; the scheduler only increments Executions, sets LastRun and may
// flip Enabled off.
type Job struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	TenantID string    `json:"tenant_id"`
	Model    string    `json:"model,omitempty"`
	Freq     Frequency `json:"frequency"`
	Enabled  bool      `json:"enabled"`
	Prompt   string    `json:"prompt"`

	LastRun    *time.Time `json:"last_run,omitempty"`
	Executions int        `json:"executions"`

	// StartAt is the start-eligibility timestamp; the job never runs before it.
	StartAt time.Time `json:"start_at"`

	// MaxExecutions caps how many times the job may run. Zero means unbounded.
	MaxExecutions int `json:"max_executions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelClass is the coarse grouping used only for rate-limit bucketing.
type ModelClass string

const (
	ClassSmall ModelClass = "small"
	ClassLarge ModelClass = "large"
)

// DefaultSmallModels is the fixed set of model identifiers bucketed as small.
var DefaultSmallModels = []string{
	"gpt-4o-mini",
	"gpt-4.1-mini",
	"gpt-4.1-nano",
	"o4-mini",
}

// classifier buckets model identifiers into small or large.
type classifier struct {
	small map[string]struct{}
}

func newClassifier(smallModels []string) classifier {
	small := make(map[string]struct{}, len(smallModels))
	for _, m := range smallModels {
		small[m] = struct{}{}
	}
	return classifier{small: small}
}

// classify returns the model class for an identifier. Anything not in the
// small set is large.
func (c classifier) classify(model string) ModelClass {
	if _, ok := c.small[model]; ok {
		return ClassSmall
	}
	return ClassLarge
}
