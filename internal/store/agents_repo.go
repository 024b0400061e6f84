package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danyelangel/automata/internal/agent"
	"github.com/danyelangel/automata/internal/tools"
)

const agentColumns = `id, tenant_id, model, name, status, tools, context, history,
	job_id, prompt_tokens, completion_tokens, total_tokens, last_error, created_at, updated_at`

// CreateAgent inserts a record created outside a scheduler tick and notifies
// subscribers (before snapshot is nil).
func (s *Store) CreateAgent(ctx context.Context, rec *agent.Record) error {
	if err := s.insertAgent(ctx, s.DB, rec); err != nil {
		return err
	}
	s.notifier.emit(RecordChange{After: cloneRecord(rec)})
	return nil
}

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertAgent(ctx context.Context, db execer, rec *agent.Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	toolsJSON, contextJSON, historyJSON, err := encodeAgentBlobs(rec)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TenantID, rec.Model, rec.Name, string(rec.Status),
		toolsJSON, contextJSON, historyJSON, nullableString(rec.JobID),
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens,
		rec.LastError, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// UpdateAgent rewrites the record row and notifies subscribers with
// before/after snapshots.
func (s *Store) UpdateAgent(ctx context.Context, rec *agent.Record) error {
	before, err := s.GetAgent(ctx, rec.ID)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()
	toolsJSON, contextJSON, historyJSON, err := encodeAgentBlobs(rec)
	if err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE agents
		SET tenant_id = ?, model = ?, name = ?, status = ?, tools = ?, context = ?, history = ?,
			job_id = ?, prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, rec.TenantID, rec.Model, rec.Name, string(rec.Status), toolsJSON, contextJSON, historyJSON,
		nullableString(rec.JobID), rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens,
		rec.LastError, rec.UpdatedAt.UTC().Format(time.RFC3339Nano), rec.ID)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent rows: %w", err)
	}
	if rows == 0 {
		return ErrAgentNotFound
	}

	s.notifier.emit(RecordChange{Before: before, After: cloneRecord(rec)})
	return nil
}

// GetAgent fetches one agent record by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Record, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	rec, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListAgentsByStatus returns records currently in the given status.
func (s *Store) ListAgentsByStatus(ctx context.Context, status agent.Status) ([]*agent.Record, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE status = ? ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var recs []*agent.Record
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return recs, nil
}

func encodeAgentBlobs(rec *agent.Record) (toolsJSON, contextJSON, historyJSON []byte, err error) {
	if toolsJSON, err = json.Marshal(orEmptyDefs(rec.Tools)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal agent tools: %w", err)
	}
	if contextJSON, err = json.Marshal(orEmptyStrings(rec.Context)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal agent context: %w", err)
	}
	if historyJSON, err = agent.MarshalHistory(rec.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal agent history: %w", err)
	}
	return toolsJSON, contextJSON, historyJSON, nil
}

func scanAgent(row rowScanner) (*agent.Record, error) {
	var (
		rec                             agent.Record
		status                          string
		toolsJSON, ctxJSON, historyJSON []byte
		jobID                           sql.NullString
		created, updated                string
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Model, &rec.Name, &status,
		&toolsJSON, &ctxJSON, &historyJSON, &jobID,
		&rec.Usage.PromptTokens, &rec.Usage.CompletionTokens, &rec.Usage.TotalTokens,
		&rec.LastError, &created, &updated); err != nil {
		return nil, err
	}
	rec.Status = agent.Status(status)
	rec.JobID = jobID.String

	if len(toolsJSON) > 0 {
		if err := json.Unmarshal(toolsJSON, &rec.Tools); err != nil {
			return nil, fmt.Errorf("parse agent tools: %w", err)
		}
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &rec.Context); err != nil {
			return nil, fmt.Errorf("parse agent context: %w", err)
		}
	}
	history, err := agent.UnmarshalHistory(historyJSON)
	if err != nil {
		return nil, fmt.Errorf("parse agent history: %w", err)
	}
	rec.History = history

	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse agent created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse agent updated_at: %w", err)
	}
	return &rec, nil
}

func orEmptyDefs(defs []tools.Definition) []tools.Definition {
	if defs == nil {
		return []tools.Definition{}
	}
	return defs
}

func orEmptyStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// cloneRecord makes a snapshot safe to hand to subscribers.
func cloneRecord(rec *agent.Record) *agent.Record {
	clone := *rec
	clone.Tools = append([]tools.Definition(nil), rec.Tools...)
	clone.Context = append([]string(nil), rec.Context...)
	clone.History = append([]agent.HistoryEntry(nil), rec.History...)
	return &clone
}
