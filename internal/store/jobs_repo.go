package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danyelangel/automata/internal/scheduler"
)

const jobColumns = `id, name, tenant_id, model, frequency, enabled, prompt,
	last_run, executions, start_at, max_executions, created_at, updated_at`

// InsertJob creates a new scheduled job row.
func (s *Store) InsertJob(ctx context.Context, job *scheduler.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.StartAt.IsZero() {
		job.StartAt = now
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Name, job.TenantID, nullableString(job.Model), string(job.Freq),
		boolToInt(job.Enabled), job.Prompt, nullableTime(job.LastRun), job.Executions,
		job.StartAt.UTC().Format(time.RFC3339Nano), job.MaxExecutions,
		job.CreatedAt.UTC().Format(time.RFC3339Nano), job.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob rewrites a job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, job *scheduler.Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs
		SET name = ?, model = ?, frequency = ?, enabled = ?, prompt = ?,
			last_run = ?, executions = ?, start_at = ?, max_executions = ?, updated_at = ?
		WHERE id = ?
	`, job.Name, nullableString(job.Model), string(job.Freq), boolToInt(job.Enabled), job.Prompt,
		nullableTime(job.LastRun), job.Executions, job.StartAt.UTC().Format(time.RFC3339Nano),
		job.MaxExecutions, job.UpdatedAt.UTC().Format(time.RFC3339Nano), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetJobEnabled flips a job's enabled flag.
func (s *Store) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set job enabled: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*scheduler.Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListEnabledJobs returns all enabled jobs across tenants, ordered by
// creation time. This order is the tick's load order and decides who gets
// the scarce rate budget.
func (s *Store) ListEnabledJobs(ctx context.Context) ([]*scheduler.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE enabled = 1 ORDER BY created_at, id`)
}

// ListJobs returns every job regardless of enabled state.
func (s *Store) ListJobs(ctx context.Context) ([]*scheduler.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
}

func (s *Store) listJobs(ctx context.Context, query string) ([]*scheduler.Job, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*scheduler.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*scheduler.Job, error) {
	var (
		job              scheduler.Job
		model            sql.NullString
		enabled          int
		lastRun          sql.NullString
		startAt, created string
		updated          string
		freq             string
	)
	if err := row.Scan(&job.ID, &job.Name, &job.TenantID, &model, &freq, &enabled, &job.Prompt,
		&lastRun, &job.Executions, &startAt, &job.MaxExecutions, &created, &updated); err != nil {
		return nil, err
	}
	job.Model = model.String
	job.Freq = scheduler.Frequency(freq)
	job.Enabled = enabled != 0

	var err error
	if job.LastRun, err = parseNullableTime(lastRun); err != nil {
		return nil, fmt.Errorf("parse job last_run: %w", err)
	}
	if job.StartAt, err = parseTime(startAt); err != nil {
		return nil, fmt.Errorf("parse job start_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse job created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse job updated_at: %w", err)
	}
	return &job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
