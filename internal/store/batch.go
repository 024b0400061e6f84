package store

import (
	"context"
	"fmt"
	"time"

	"github.com/danyelangel/automata/internal/scheduler"
)

// CommitTick applies one scheduler tick batch in a single transaction:
// every staged agent insert and job update lands together or not at all.
// Partial application would let a one-shot job fire twice or a recurring job
// lose an execution count. After the commit, subscribers are notified of
// each created record.
func (s *Store) CommitTick(ctx context.Context, batch *scheduler.TickBatch) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tick transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range batch.Agents {
		if err := s.insertAgent(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, job := range batch.Jobs {
		if err := updateJobTx(ctx, tx, job); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick transaction: %w", err)
	}

	for _, rec := range batch.Agents {
		s.notifier.emit(RecordChange{After: cloneRecord(rec)})
	}
	return nil
}

func updateJobTx(ctx context.Context, tx execer, job *scheduler.Job) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET enabled = ?, last_run = ?, executions = ?, updated_at = ?
		WHERE id = ?
	`, boolToInt(job.Enabled), nullableTime(job.LastRun), job.Executions,
		job.UpdatedAt.UTC().Format(time.RFC3339Nano), job.ID)
	if err != nil {
		return fmt.Errorf("update job %s in tick: %w", job.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s rows: %w", job.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("update job %s in tick: %w", job.ID, ErrJobNotFound)
	}
	return nil
}
