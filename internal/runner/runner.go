// Package runner bridges persistence notifications and the controller: every
// time an agent record lands in a workable state, the runner steps it until
// it parks in a terminal per-tick state. It guarantees at-most-one in-flight
// invocation per record, which the controller itself does not.
package runner

import (
	"context"
	"sync"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/agent/controller"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/store"
	"github.com/danyelangel/automata/internal/track"
)

// DefaultMaxWorkers bounds how many records are driven concurrently.
const DefaultMaxWorkers = 4

// Store is the persistence surface the runner needs.
type Store interface {
	GetAgent(ctx context.Context, id string) (*agent.Record, error)
	UpdateAgent(ctx context.Context, rec *agent.Record) error
}

// Notifier is pinged when a record parks somewhere a human should look at.
type Notifier interface {
	AgentNeedsAttention(ctx context.Context, rec *agent.Record, reason string) error
}

// Config holds runner configuration.
type Config struct {
	MaxWorkers int // defaults to DefaultMaxWorkers
}

// Runner drives agent records through controller steps.
type Runner struct {
	store    Store
	ctrl     *controller.Controller
	notifier Notifier
	sink     track.Sink
	logger   *logger.Logger

	ctx context.Context
	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a runner. notifier and sink may be nil.
func New(st Store, ctrl *controller.Controller, notifier Notifier, sink track.Sink, log *logger.Logger, cfg Config) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if sink == nil {
		sink = track.Noop{}
	}
	return &Runner{
		store:    st,
		ctrl:     ctrl,
		notifier: notifier,
		sink:     sink,
		logger:   log,
		sem:      make(chan struct{}, cfg.MaxWorkers),
		inFlight: make(map[string]bool),
	}
}

// Start binds the runner to a lifetime context. Must be called before the
// first change arrives.
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
}

// Wait blocks until all in-flight drives finish. Used on shutdown and in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// HandleChange is the store subscription callback. Changes for records that
// are terminal, or already being driven, are ignored; the in-flight drive
// always refetches the latest row before each step.
func (r *Runner) HandleChange(change store.RecordChange) {
	rec := change.After
	if rec == nil || rec.Status.Terminal() || !rec.Status.Valid() {
		return
	}

	r.mu.Lock()
	if r.inFlight[rec.ID] {
		r.mu.Unlock()
		return
	}
	r.inFlight[rec.ID] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func(id string) {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inFlight, id)
			r.mu.Unlock()
		}()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		r.drive(id)
	}(rec.ID)
}

// drive steps one record until the controller declines to process it.
func (r *Runner) drive(id string) {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		rec, err := r.store.GetAgent(ctx, id)
		if err != nil {
			r.logger.ErrorCtx(ctx, "Failed to load agent record", err,
				logger.Field{Key: "agent_id", Value: id})
			return
		}

		res := r.ctrl.Step(ctx, rec)
		if !res.Processed {
			return
		}

		if err := r.store.UpdateAgent(ctx, rec); err != nil {
			r.logger.ErrorCtx(ctx, "Failed to persist agent record", err,
				logger.Field{Key: "agent_id", Value: id})
			return
		}

		r.sink.Track(track.EventAgentTransition, map[string]any{
			"agent_id": rec.ID,
			"from":     string(res.From),
			"to":       string(res.To),
		})

		if rec.Status.Terminal() {
			r.notifyIfNeeded(ctx, rec)
			return
		}
	}
}

func (r *Runner) notifyIfNeeded(ctx context.Context, rec *agent.Record) {
	if r.notifier == nil {
		return
	}

	var reason string
	switch rec.Status {
	case agent.StatusAwaitingHuman:
		reason = "a tool call needs human approval"
	case agent.StatusError:
		reason = "the agent stopped with an error: " + rec.LastError
	default:
		return
	}

	if err := r.notifier.AgentNeedsAttention(ctx, rec, reason); err != nil {
		r.logger.WarnCtx(ctx, "Failed to send attention notification",
			logger.Field{Key: "agent_id", Value: rec.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}
}
