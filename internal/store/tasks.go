package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// TaskStore manages the tasks table. An insert is one RPC; the insert
// trigger publishes task.new and the status transitions publish
// task.completed / task.failed.
type TaskStore struct {
	db *pgxpool.Pool
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db *pgxpool.Pool) *TaskStore {
	return &TaskStore{db: db}
}

// Insert creates a pending task and returns its id.
func (s *TaskStore) Insert(ctx context.Context, typ model.TaskType, params any) (int64, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshal task params: %w", err)
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO tasks (type, payload, status) VALUES ($1, $2, 'pending')
		RETURNING id`,
		string(typ), payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// Claim transitions pending -> processing. The compare-and-swap makes a
// duplicate task.new delivery harmless: only one claimer wins.
func (s *TaskStore) Claim(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tasks SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("claim task %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete writes the result (nil for bulk types whose output lives in a
// side table) and transitions to completed.
func (s *TaskStore) Complete(ctx context.Context, id int64, result json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tasks SET status = 'completed', result = $2, updated_at = now()
		WHERE id = $1`,
		id, result,
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return nil
}

// Fail records the error string in the result column so the gateway can
// return it to the client.
func (s *TaskStore) Fail(ctx context.Context, id int64, errMsg string) error {
	result, _ := json.Marshal(map[string]string{"error": errMsg})
	_, err := s.db.Exec(ctx, `
		UPDATE tasks SET status = 'failed', result = $2, updated_at = now()
		WHERE id = $1`,
		id, result,
	)
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	return nil
}

// Get fetches one task row.
func (s *TaskStore) Get(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, type, payload, result, status,
		       (extract(epoch FROM created_at) * 1000)::bigint,
		       (extract(epoch FROM updated_at) * 1000)::bigint
		FROM tasks WHERE id = $1`,
		id,
	)

	var t model.Task
	var typ, status string
	err := row.Scan(&t.ID, &typ, &t.Payload, &t.Result, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	t.Type = model.TaskType(typ)
	t.Status = model.TaskStatus(status)
	return &t, nil
}

// PendingIDs returns ids of tasks still pending, oldest first. The adapter
// drains these at start to pick up work enqueued while it was down.
func (s *TaskStore) PendingIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM tasks WHERE status = 'pending' ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
