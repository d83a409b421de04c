package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const executionColumns = "id, job_id, params_key, params_json, status, started_at, ended_at, exit_message, read_count, write_count, skip_count"

func scanExecution(scanner rowScanner) (*Execution, error) {
	var (
		e        Execution
		status   string
		started  string
		ended    sql.NullString
		exitText sql.NullString
	)
	if err := scanner.Scan(&e.ID, &e.JobID, &e.ParamsKey, &e.ParamsJSON, &status, &started, &ended, &exitText, &e.ReadCount, &e.WriteCount, &e.SkipCount); err != nil {
		return nil, err
	}
	e.Status = ExecutionStatus(status)
	if ts, err := parseTimeString(started); err == nil {
		e.StartedAt = ts
	}
	e.EndedAt = parseNullTime(ended)
	e.ExitMessage = exitText.String
	return &e, nil
}

// InsertExecution records a new job execution.
func (s *Store) InsertExecution(ctx context.Context, exec *Execution) error {
	if exec == nil || exec.ID == "" {
		return errors.New("insert execution: identifier is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO job_executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.JobID, exec.ParamsKey, exec.ParamsJSON, exec.Status, formatTime(exec.StartedAt),
		nullableTime(exec.EndedAt), nullableString(exec.ExitMessage), exec.ReadCount, exec.WriteCount, exec.SkipCount)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// UpdateExecution persists status, end time, exit message and counters.
func (s *Store) UpdateExecution(ctx context.Context, exec *Execution) error {
	if exec == nil || exec.ID == "" {
		return errors.New("update execution: identifier is required")
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE job_executions SET status = ?, ended_at = ?, exit_message = ?, read_count = ?, write_count = ?, skip_count = ? WHERE id = ?`,
		exec.Status, nullableTime(exec.EndedAt), nullableString(exec.ExitMessage), exec.ReadCount, exec.WriteCount, exec.SkipCount, exec.ID)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}
	return nil
}

// FindExecutions returns the executions of jobID launched with identical
// parameters, newest first.
func (s *Store) FindExecutions(ctx context.Context, jobID, paramsKey string) ([]*Execution, error) {
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM job_executions WHERE job_id = ? AND params_key = ? ORDER BY started_at DESC, id`,
		jobID, paramsKey)
}

// ListExecutions returns the most recent executions, optionally filtered by job.
func (s *Store) ListExecutions(ctx context.Context, jobID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	if jobID == "" {
		return s.queryExecutions(ctx, `SELECT `+executionColumns+` FROM job_executions ORDER BY started_at DESC LIMIT ?`, limit)
	}
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM job_executions WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`, jobID, limit)
}

// AbandonRunningExecutions marks executions left running by a previous
// process as abandoned. It returns the number of executions updated.
func (s *Store) AbandonRunningExecutions(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE job_executions SET status = ?, ended_at = ?, exit_message = ? WHERE status IN (?, ?)`,
		ExecutionAbandoned, formatTime(time.Now()), "daemon stopped before the execution finished",
		ExecutionStarting, ExecutionStarted)
	if err != nil {
		return 0, fmt.Errorf("abandon running executions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryExecutions(ctx context.Context, query string, args ...any) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}
