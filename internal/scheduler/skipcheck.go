package scheduler

import (
	"fmt"
	"time"
)

// SkipReason is the machine-readable kind of a skip decision.
type SkipReason string

const (
	ReasonNotReady      SkipReason = "not-ready"
	ReasonRanRecently   SkipReason = "run-recently"
	ReasonMaxExecutions SkipReason = "max-executions"
	ReasonAlreadyRan    SkipReason = "already-ran"
	ReasonRateLimited   SkipReason = "rate-limited"
)

// SkipDecision says whether a job is not yet eligible to run this tick, and
// why. Decisions are produced fresh per evaluation and never persisted.
type SkipDecision struct {
	Skip    bool
	Reason  SkipReason
	Message string
}

// runRecentlyLeeway is the grace window subtracted from the last-run time so
// a run that lands a few seconds early due to scheduler jitter is not skipped.
const runRecentlyLeeway = time.Minute

// skipCheck is one predicate in the pipeline.
type skipCheck func(job *Job, now time.Time, rl *RateLimiter) SkipDecision

// pipeline evaluates the five skip checks in their fixed order. Evaluation
// short-circuits on the first tripped predicate; the order determines which
// reason is reported when several conditions hold at once.
type pipeline struct {
	checks []skipCheck
}

func newPipeline(cls classifier) pipeline {
	return pipeline{checks: []skipCheck{
		checkNotReady,
		checkRanRecently,
		checkMaxExecutions,
		checkAlreadyRan,
		makeRateLimitCheck(cls),
	}}
}

// Evaluate runs the pipeline against one job. A zero-value decision means
// the job is eligible.
func (p pipeline) Evaluate(job *Job, now time.Time, rl *RateLimiter) SkipDecision {
	for _, check := range p.checks {
		if d := check(job, now, rl); d.Skip {
			return d
		}
	}
	return SkipDecision{}
}

func checkNotReady(job *Job, now time.Time, _ *RateLimiter) SkipDecision {
	if now.Before(job.StartAt) {
		return SkipDecision{
			Skip:    true,
			Reason:  ReasonNotReady,
			Message: fmt.Sprintf("job %s not eligible before %s", job.Name, job.StartAt.Format(time.RFC3339)),
		}
	}
	return SkipDecision{}
}

func checkRanRecently(job *Job, now time.Time, _ *RateLimiter) SkipDecision {
	if job.Freq == FreqOnce || job.LastRun == nil {
		return SkipDecision{}
	}

	// The leeway comes off the last-run time rather than the threshold; the
	// comparison is algebraically the same either way.
	threshold := now.Add(-intervalFor(job.Freq))
	effectiveLastRun := job.LastRun.Add(-runRecentlyLeeway)
	if !effectiveLastRun.Before(threshold) {
		return SkipDecision{
			Skip:    true,
			Reason:  ReasonRanRecently,
			Message: fmt.Sprintf("job %s ran at %s, within its %s interval", job.Name, job.LastRun.Format(time.RFC3339), job.Freq),
		}
	}
	return SkipDecision{}
}

func checkMaxExecutions(job *Job, _ time.Time, _ *RateLimiter) SkipDecision {
	if job.MaxExecutions <= 0 {
		return SkipDecision{}
	}
	if job.Executions >= job.MaxExecutions {
		return SkipDecision{
			Skip:    true,
			Reason:  ReasonMaxExecutions,
			Message: fmt.Sprintf("job %s reached its execution cap (%d/%d)", job.Name, job.Executions, job.MaxExecutions),
		}
	}
	return SkipDecision{}
}

func checkAlreadyRan(job *Job, _ time.Time, _ *RateLimiter) SkipDecision {
	if job.Freq == FreqOnce && job.LastRun != nil && !job.LastRun.IsZero() {
		return SkipDecision{
			Skip:    true,
			Reason:  ReasonAlreadyRan,
			Message: fmt.Sprintf("one-shot job %s already ran at %s", job.Name, job.LastRun.Format(time.RFC3339)),
		}
	}
	return SkipDecision{}
}

func makeRateLimitCheck(cls classifier) skipCheck {
	return func(job *Job, _ time.Time, rl *RateLimiter) SkipDecision {
		class := cls.classify(job.Model)
		if rl.AtCap(class) {
			return SkipDecision{
				Skip:   true,
				Reason: ReasonRateLimited,
				Message: fmt.Sprintf("job %s rate-limited: %d/%d %s agents already created this tick",
					job.Name, rl.Count(class), rl.Cap(class), class),
			}
		}
		return SkipDecision{}
	}
}
