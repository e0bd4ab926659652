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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RealtimeStore manages realtime_data: the hybrid cache / event-bus table
// keyed by subscription key.
//
// Invariant: a row exists iff its subscribers array is non-empty. Register
// and Unregister maintain that; payload writes come only from the exchange
// adapter (single writer per key).
type RealtimeStore struct {
	db *pgxpool.Pool
}

// NewRealtimeStore creates a RealtimeStore.
func NewRealtimeStore(db *pgxpool.Pool) *RealtimeStore {
	return &RealtimeStore{db: db}
}

// Register upserts the row for key and places subscriber at the head of
// the subscribers array. Re-registering moves an existing id back to the
// head, so the operation is idempotent.
func (s *RealtimeStore) Register(ctx context.Context, key, dataType, subscriber string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO realtime_data (subscription_key, data_type, subscribers, updated_at)
		VALUES ($1, $2, ARRAY[$3], now())
		ON CONFLICT (subscription_key) DO UPDATE
		SET subscribers = array_prepend($3, array_remove(realtime_data.subscribers, $3)),
		    updated_at  = now()`,
		key, dataType, subscriber,
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}
	return nil
}

// Unregister removes subscriber from the row's subscribers array and
// deletes the row iff the array becomes empty.
func (s *RealtimeStore) Unregister(ctx context.Context, key, subscriber string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE realtime_data
		SET subscribers = array_remove(subscribers, $2), updated_at = now()
		WHERE subscription_key = $1`,
		key, subscriber,
	)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", key, err)
	}

	_, err = s.db.Exec(ctx, `
		DELETE FROM realtime_data
		WHERE subscription_key = $1 AND cardinality(subscribers) = 0`,
		key,
	)
	if err != nil {
		return fmt.Errorf("unregister delete %s: %w", key, err)
	}
	return nil
}

// UpdatePayload writes the last-known value for key. The row's update
// trigger publishes realtime.update. Missing rows are a no-op: a payload
// without subscribers has nowhere to go.
func (s *RealtimeStore) UpdatePayload(ctx context.Context, key string, data json.RawMessage, eventTime int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE realtime_data
		SET data = $2, event_time = $3, updated_at = now()
		WHERE subscription_key = $1`,
		key, data, eventTime,
	)
	if err != nil {
		return fmt.Errorf("update payload %s: %w", key, err)
	}
	return nil
}

// Get fetches one row.
func (s *RealtimeStore) Get(ctx context.Context, key string) (*model.RealtimeRow, error) {
	row := s.db.QueryRow(ctx, `
		SELECT subscription_key, data_type, COALESCE(data, 'null'::jsonb), event_time,
		       (extract(epoch FROM updated_at) * 1000)::bigint, subscribers
		FROM realtime_data WHERE subscription_key = $1`,
		key,
	)

	var r model.RealtimeRow
	err := row.Scan(&r.SubscriptionKey, &r.DataType, &r.Data, &r.EventTime, &r.UpdatedAt, &r.Subscribers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get realtime %s: %w", key, err)
	}
	return &r, nil
}

// ListKeys returns every materialised subscription key. The multiplexer
// uses this as the wanted set during a full sync.
func (s *RealtimeStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT subscription_key FROM realtime_data ORDER BY subscription_key`)
	if err != nil {
		return nil, fmt.Errorf("list realtime keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clean removes subscriber from every row, deletes rows left without
// subscribers, and publishes subscription.clean. Run by the gateway at
// start to tear down rows from a previous run.
func (s *RealtimeStore) Clean(ctx context.Context, subscriber string) (int, error) {
	var removed int
	err := s.db.QueryRow(ctx, `SELECT clean_realtime_subscriber($1)`, subscriber).Scan(&removed)
	if err != nil {
		return 0, fmt.Errorf("clean subscriber %s: %w", subscriber, err)
	}
	return removed, nil
}
