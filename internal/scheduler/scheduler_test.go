package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/tools"
	"github.com/danyelangel/automata/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for scheduler tests.
type fakeStore struct {
	jobs      []*Job
	listErr   error
	commitErr error
	committed []*TickBatch
}

func (f *fakeStore) ListEnabledJobs(ctx context.Context) ([]*Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.jobs, nil
}

func (f *fakeStore) CommitTick(ctx context.Context, batch *TickBatch) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, batch)
	return nil
}

func newTestScheduler(st *fakeStore, sink track.Sink, cfg Config) *Scheduler {
	registry := tools.NewRegistry()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4.1"
	}
	s := New(st, registry, nil, sink, logger.Nop(), cfg)
	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func eligibleJob(id, model string) *Job {
	past := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	return &Job{
		ID:        id,
		Name:      "job " + id,
		TenantID:  "tenant-1",
		Model:     model,
		Freq:      FreqDaily,
		Enabled:   true,
		Prompt:    "do the thing",
		StartAt:   past,
		CreatedAt: past,
		UpdatedAt: past,
	}
}

func TestRunTick_StagesAgentsAndBookkeeping(t *testing.T) {
	st := &fakeStore{jobs: []*Job{eligibleJob("j1", "gpt-4.1")}}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)

	batch := st.committed[0]
	require.Len(t, batch.Agents, 1)
	require.Len(t, batch.Jobs, 1)

	rec := batch.Agents[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "tenant-1", rec.TenantID)
	assert.Equal(t, "gpt-4.1", rec.Model)
	assert.Equal(t, DefaultNamePrefix+"job j1", rec.Name)
	assert.Equal(t, agent.StatusRunning, rec.Status)
	assert.Equal(t, "j1", rec.JobID)

	require.Len(t, rec.History, 1)
	msg, ok := rec.History[0].(*agent.UserMessage)
	require.True(t, ok)
	assert.Equal(t, "<prompt>do the thing</prompt><automation_id>j1</automation_id>", msg.Content)

	updated := batch.Jobs[0]
	assert.Equal(t, 1, updated.Executions)
	assert.True(t, updated.Enabled)
	require.NotNil(t, updated.LastRun)
	assert.Equal(t, s.now(), *updated.LastRun)

	executed := sink.ByEvent(track.EventAutomationExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, "j1", executed[0].Props["job_id"])
}

func TestRunTick_OneShotDisablesAfterRun(t *testing.T) {
	job := eligibleJob("j1", "gpt-4.1")
	job.Freq = FreqOnce
	st := &fakeStore{jobs: []*Job{job}}
	s := newTestScheduler(st, nil, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)
	assert.False(t, st.committed[0].Jobs[0].Enabled)
}

func TestRunTick_MaxExecutionsDisablesAtCap(t *testing.T) {
	job := eligibleJob("j1", "gpt-4.1")
	job.MaxExecutions = 2
	job.Executions = 1
	st := &fakeStore{jobs: []*Job{job}}
	s := newTestScheduler(st, nil, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)

	updated := st.committed[0].Jobs[0]
	assert.Equal(t, 2, updated.Executions)
	assert.False(t, updated.Enabled, "job reaching its cap disables itself")
}

func TestRunTick_DefaultModelApplied(t *testing.T) {
	st := &fakeStore{jobs: []*Job{eligibleJob("j1", "")}}
	s := newTestScheduler(st, nil, Config{DefaultModel: "gpt-4.1-mini"})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)
	assert.Equal(t, "gpt-4.1-mini", st.committed[0].Agents[0].Model)
}

func TestRunTick_RateLimitAcrossTenants(t *testing.T) {
	j1 := eligibleJob("j1", "gpt-4o-mini")
	j2 := eligibleJob("j2", "gpt-4o-mini")
	j2.TenantID = "tenant-2"
	j3 := eligibleJob("j3", "gpt-4o-mini")
	j3.TenantID = "tenant-3"

	st := &fakeStore{jobs: []*Job{j1, j2, j3}}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)

	// The small budget is 2 per tick, shared across tenants; the third job
	// waits for the next tick with its bookkeeping untouched.
	batch := st.committed[0]
	assert.Len(t, batch.Agents, 2)
	assert.Len(t, batch.Jobs, 2)
	assert.Equal(t, "j1", batch.Jobs[0].ID)
	assert.Equal(t, "j2", batch.Jobs[1].ID)

	skipped := sink.ByEvent(track.EventAutomationSkipped)
	require.Len(t, skipped, 1)
	props := skipped[0].Props
	assert.Equal(t, "j3", props["job_id"])
	assert.Equal(t, string(ReasonRateLimited), props["reason"])
	assert.Equal(t, string(ClassSmall), props["model_class"])
	assert.Equal(t, 2, props["cap"])
	assert.Equal(t, 2, props["count"])
}

func TestRunTick_CustomSmallModelsClassifyConsistently(t *testing.T) {
	j1 := eligibleJob("j1", "house-small")
	j2 := eligibleJob("j2", "house-small")
	j3 := eligibleJob("j3", "house-small")

	st := &fakeStore{jobs: []*Job{j1, j2, j3}}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{SmallModels: []string{"house-small"}})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)

	// The configured small set must govern both the budget check and the
	// budget spend, so the override caps the third job at the small limit.
	assert.Len(t, st.committed[0].Agents, 2)

	skipped := sink.ByEvent(track.EventAutomationSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "j3", skipped[0].Props["job_id"])
	assert.Equal(t, string(ClassSmall), skipped[0].Props["model_class"])
	assert.Equal(t, 2, skipped[0].Props["cap"])
}

func TestRunTick_SmallAndLargeBudgetsIndependent(t *testing.T) {
	var jobs []*Job
	for i := 0; i < 3; i++ {
		jobs = append(jobs, eligibleJob(fmt.Sprintf("small-%d", i), "gpt-4o-mini"))
	}
	for i := 0; i < 3; i++ {
		jobs = append(jobs, eligibleJob(fmt.Sprintf("large-%d", i), "gpt-4.1"))
	}

	st := &fakeStore{jobs: jobs}
	s := newTestScheduler(st, nil, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)

	var small, large int
	for _, rec := range st.committed[0].Agents {
		if strings.HasPrefix(rec.JobID, "small-") {
			small++
		} else {
			large++
		}
	}
	assert.Equal(t, 2, small)
	assert.Equal(t, 3, large, "large jobs are unaffected by small budget exhaustion")
}

func TestRunTick_NoEligibleJobsSkipsCommit(t *testing.T) {
	job := eligibleJob("j1", "gpt-4.1")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	job.LastRun = &recent

	st := &fakeStore{jobs: []*Job{job}}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	assert.Empty(t, st.committed, "no commit when nothing is eligible")

	skipped := sink.ByEvent(track.EventAutomationSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, string(ReasonRanRecently), skipped[0].Props["reason"])
}

func TestRunTick_EmptyJobList(t *testing.T) {
	st := &fakeStore{}
	s := newTestScheduler(st, nil, Config{})

	require.NoError(t, s.RunTick(context.Background()))
	assert.Empty(t, st.committed)
}

func TestRunTick_ListErrorPropagates(t *testing.T) {
	st := &fakeStore{listErr: fmt.Errorf("database locked")}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{})

	err := s.RunTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database locked")

	require.Len(t, sink.ByEvent(track.EventTickError), 1)
}

func TestRunTick_CommitErrorPropagates(t *testing.T) {
	st := &fakeStore{
		jobs:      []*Job{eligibleJob("j1", "gpt-4.1")},
		commitErr: fmt.Errorf("disk full"),
	}
	sink := &track.Capture{}
	s := newTestScheduler(st, sink, Config{})

	err := s.RunTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, sink.ByEvent(track.EventTickError), 1)
}

func TestRunTick_ContextBuilder(t *testing.T) {
	st := &fakeStore{jobs: []*Job{eligibleJob("j1", "gpt-4.1")}}
	registry := tools.NewRegistry()
	builder := func(job *Job) []string {
		return []string{"tenant:" + job.TenantID}
	}
	s := New(st, registry, builder, nil, logger.Nop(), Config{DefaultModel: "gpt-4.1"})

	require.NoError(t, s.RunTick(context.Background()))
	require.Len(t, st.committed, 1)
	assert.Equal(t, []string{"tenant:tenant-1"}, st.committed[0].Agents[0].Context)
}
