package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const taskColumns = "id, task_type, properties_json, enqueued_at, claimed_at, finished_at, failure"

func scanTask(scanner rowScanner) (*PersistedTask, error) {
	var (
		t          PersistedTask
		propsRaw   string
		enqueued   string
		claimedRaw sql.NullString
		finishRaw  sql.NullString
		failure    sql.NullString
	)
	if err := scanner.Scan(&t.ID, &t.TaskType, &propsRaw, &enqueued, &claimedRaw, &finishRaw, &failure); err != nil {
		return nil, err
	}
	t.Properties = map[string]string{}
	if propsRaw != "" {
		if err := json.Unmarshal([]byte(propsRaw), &t.Properties); err != nil {
			return nil, fmt.Errorf("decode task %d properties: %w", t.ID, err)
		}
	}
	if ts, err := parseTimeString(enqueued); err == nil {
		t.EnqueuedAt = ts
	}
	t.ClaimedAt = parseNullTime(claimedRaw)
	t.FinishedAt = parseNullTime(finishRaw)
	t.Failure = failure.String
	return &t, nil
}

// EnqueueTask persists a new task at the tail of the queue.
func (s *Store) EnqueueTask(ctx context.Context, taskType string, properties map[string]string) (*PersistedTask, error) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return nil, errors.New("enqueue task: task type is required")
	}
	if properties == nil {
		properties = map[string]string{}
	}
	encoded, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("encode task properties: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO persisted_tasks (task_type, properties_json, enqueued_at) VALUES (?, ?, ?)`,
		taskType, string(encoded), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	return &PersistedTask{ID: id, TaskType: taskType, Properties: props, EnqueuedAt: now}, nil
}

// ClaimTasks marks up to limit unclaimed tasks as claimed and returns them in
// enqueue order. Selection and marking happen in one transaction so a task is
// handed out at most once.
func (s *Store) ClaimTasks(ctx context.Context, limit int) ([]*PersistedTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	var claimed []*PersistedTask
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		claimed = claimed[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM persisted_tasks WHERE claimed_at IS NULL ORDER BY id LIMIT ?`, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, task)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		now := time.Now().UTC()
		ids := make([]int64, len(claimed))
		for i, task := range claimed {
			ids[i] = task.ID
			task.ClaimedAt = &now
		}
		args := append([]any{formatTime(now)}, int64Args(ids)...)
		_, err = tx.ExecContext(ctx,
			`UPDATE persisted_tasks SET claimed_at = ? WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	return claimed, nil
}

// FinishTask stamps a claimed task with its completion time and failure
// message (empty on success).
func (s *Store) FinishTask(ctx context.Context, id int64, failure string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE persisted_tasks SET finished_at = ?, failure = ? WHERE id = ?`,
		formatTime(time.Now()), nullableString(failure), id)
	if err != nil {
		return fmt.Errorf("finish task %d: %w", id, err)
	}
	return nil
}

// PruneFinishedTasks deletes finished tasks older than the cutoff.
func (s *Store) PruneFinishedTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM persisted_tasks WHERE finished_at IS NOT NULL AND finished_at < ?`, formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearPendingTasks deletes every unclaimed task.
func (s *Store) ClearPendingTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM persisted_tasks WHERE claimed_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("clear pending tasks: %w", err)
	}
	return res.RowsAffected()
}

// RequeueUnfinishedTasks releases tasks that were claimed but never finished,
// typically because the process stopped while they were queued in memory.
func (s *Store) RequeueUnfinishedTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE persisted_tasks SET claimed_at = NULL WHERE claimed_at IS NOT NULL AND finished_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("requeue tasks: %w", err)
	}
	return res.RowsAffected()
}

// ListTasks returns persisted tasks in enqueue order. When pendingOnly is set,
// only unclaimed tasks are returned.
func (s *Store) ListTasks(ctx context.Context, pendingOnly bool) ([]*PersistedTask, error) {
	query := `SELECT ` + taskColumns + ` FROM persisted_tasks`
	if pendingOnly {
		query += ` WHERE claimed_at IS NULL`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*PersistedTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskStats summarizes the task queue.
func (s *Store) TaskStats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT
		COALESCE(SUM(CASE WHEN claimed_at IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN claimed_at IS NOT NULL AND finished_at IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN finished_at IS NOT NULL AND failure IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN failure IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM persisted_tasks`).Scan(&stats.Pending, &stats.Claimed, &stats.Finished, &stats.Failed)
	if err != nil {
		return TaskStats{}, fmt.Errorf("task stats: %w", err)
	}
	return stats, nil
}
