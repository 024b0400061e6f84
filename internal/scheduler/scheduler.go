package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/tools"
	"github.com/danyelangel/automata/internal/track"
	"github.com/google/uuid"
)

// DefaultNamePrefix is prepended to agent display names created from jobs.
const DefaultNamePrefix = "⚡️ "

// ContextBuilder maps a job to the context references handed to its agent.
// Implementations must be pure.
type ContextBuilder func(job *Job) []string

// TickBatch is the staged output of one tick: agent records to create and
// the updated job rows, committed together or not at all. Partial
// application would let a one-shot job fire twice or a recurring job lose an
// execution count.
type TickBatch struct {
	Agents []*agent.Record
	Jobs   []*Job
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	// ListEnabledJobs returns all enabled jobs across tenants, in load order.
	ListEnabledJobs(ctx context.Context) ([]*Job, error)

	// CommitTick atomically applies a staged batch.
	CommitTick(ctx context.Context, batch *TickBatch) error
}

// Config holds scheduler configuration.
type Config struct {
	NamePrefix   string // defaults to DefaultNamePrefix
	DefaultModel string
	SmallModels  []string // defaults to DefaultSmallModels
	SmallCap     int      // defaults to DefaultSmallCap
	LargeCap     int      // defaults to DefaultLargeCap
}

// Scheduler drives one batch evaluation per external tick.
type Scheduler struct {
	store    Store
	registry *tools.Registry
	builder  ContextBuilder
	sink     track.Sink
	logger   *logger.Logger
	cls      classifier
	pipe     pipeline
	cfg      Config

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler.
func New(store Store, registry *tools.Registry, builder ContextBuilder, sink track.Sink, log *logger.Logger, cfg Config) *Scheduler {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if len(cfg.SmallModels) == 0 {
		cfg.SmallModels = DefaultSmallModels
	}
	if sink == nil {
		sink = track.Noop{}
	}
	cls := newClassifier(cfg.SmallModels)
	return &Scheduler{
		store:    store,
		registry: registry,
		builder:  builder,
		sink:     sink,
		logger:   log,
		cls:      cls,
		pipe:     newPipeline(cls),
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunTick processes all currently enabled jobs exactly once. Jobs are
// evaluated strictly sequentially in load order; when the rate budget runs
// out, later jobs are simply skipped and retried next tick. Any
// infrastructure failure aborts the whole tick and propagates to the caller,
// who retries the tick wholesale.
func (s *Scheduler) RunTick(ctx context.Context) error {
	now := s.now()

	jobs, err := s.store.ListEnabledJobs(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load enabled jobs: %w", err)
		s.trackTickError(ctx, err)
		return err
	}
	if len(jobs) == 0 {
		s.logger.DebugCtx(ctx, "No enabled jobs this tick")
		return nil
	}

	limiter := NewRateLimiter(s.cfg.SmallCap, s.cfg.LargeCap)
	batch := &TickBatch{}

	for _, job := range jobs {
		if decision := s.pipe.Evaluate(job, now, limiter); decision.Skip {
			s.trackSkip(ctx, job, decision, limiter)
			continue
		}

		rec := s.buildAgentRecord(job, now)
		batch.Agents = append(batch.Agents, rec)
		batch.Jobs = append(batch.Jobs, updatedJob(job, now))
		limiter.Increment(s.cls.classify(job.Model))

		s.sink.Track(track.EventAutomationExecuted, map[string]any{
			"job_id":    job.ID,
			"job_name":  job.Name,
			"tenant_id": job.TenantID,
			"agent_id":  rec.ID,
		})
		s.logger.InfoCtx(ctx, "Job eligible, agent staged",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "agent_id", Value: rec.ID})
	}

	if len(batch.Agents) == 0 {
		return nil
	}

	if err := s.store.CommitTick(ctx, batch); err != nil {
		err = fmt.Errorf("failed to commit tick batch: %w", err)
		s.trackTickError(ctx, err)
		return err
	}

	s.logger.InfoCtx(ctx, "Tick committed",
		logger.Field{Key: "agents_created", Value: len(batch.Agents)},
		logger.Field{Key: "jobs_evaluated", Value: len(jobs)})
	return nil
}

// buildAgentRecord constructs the record for one eligible job: tools are the
// current registry snapshot, history is a single synthetic user message
// embedding the prompt and the job's own id, status starts at running.
func (s *Scheduler) buildAgentRecord(job *Job, now time.Time) *agent.Record {
	model := job.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}

	var contextRefs []string
	if s.builder != nil {
		contextRefs = s.builder(job)
	}

	return &agent.Record{
		ID:       uuid.NewString(),
		TenantID: job.TenantID,
		Model:    model,
		Name:     s.cfg.NamePrefix + job.Name,
		Status:   agent.StatusRunning,
		Tools:    s.registry.List(),
		Context:  contextRefs,
		History: []agent.HistoryEntry{
			&agent.UserMessage{
				Content: fmt.Sprintf("<prompt>%s</prompt><automation_id>%s</automation_id>", job.Prompt, job.ID),
			},
		},
		JobID:     job.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// updatedJob returns the job's staged bookkeeping: executions advance by one,
// one-shot jobs disable after their single run, recurring jobs stay enabled
// until they hit their cap.
func updatedJob(job *Job, now time.Time) *Job {
	updated := *job
	updated.Executions = job.Executions + 1
	updated.Enabled = job.Freq != FreqOnce &&
		(job.MaxExecutions <= 0 || updated.Executions < job.MaxExecutions)
	lastRun := now
	updated.LastRun = &lastRun
	updated.UpdatedAt = now
	return &updated
}

func (s *Scheduler) trackSkip(ctx context.Context, job *Job, decision SkipDecision, limiter *RateLimiter) {
	props := map[string]any{
		"job_id":   job.ID,
		"job_name": job.Name,
		"reason":   string(decision.Reason),
		"message":  decision.Message,
	}
	if decision.Reason == ReasonRateLimited {
		class := s.cls.classify(job.Model)
		props["model_class"] = string(class)
		props["cap"] = limiter.Cap(class)
		props["count"] = limiter.Count(class)
	}
	s.sink.Track(track.EventAutomationSkipped, props)
	s.logger.DebugCtx(ctx, "Job skipped",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "reason", Value: string(decision.Reason)})
}

func (s *Scheduler) trackTickError(ctx context.Context, err error) {
	s.sink.Track(track.EventTickError, map[string]any{"error": err.Error()})
	s.logger.ErrorCtx(ctx, "Scheduler tick aborted", err)
}
