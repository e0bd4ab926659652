package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// SignalStore appends strategy_signals rows. Only non-null verdicts are
// ever written; the insert trigger publishes signal.new.
type SignalStore struct {
	db *pgxpool.Pool
}

// NewSignalStore creates a SignalStore.
func NewSignalStore(db *pgxpool.Pool) *SignalStore {
	return &SignalStore{db: db}
}

// Insert appends one signal and returns its id.
func (s *SignalStore) Insert(ctx context.Context, sig *model.Signal) (int64, error) {
	metadata := sig.Metadata
	if metadata == nil {
		metadata = []byte(`{}`)
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO strategy_signals (alert_id, strategy_type, symbol, interval,
			trigger_type, signal_value, signal_reason, computed_at,
			source_subscription_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		sig.AlertID, sig.StrategyType, sig.Symbol, sig.Interval,
		string(sig.TriggerType), sig.Value, sig.Reason, sig.ComputedAt,
		sig.SourceKey, metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return id, nil
}

// List returns recent signals, newest first, optionally filtered by alert.
func (s *SignalStore) List(ctx context.Context, alertID string, limit int) ([]*model.Signal, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	const cols = `id, alert_id, strategy_type, symbol, interval, trigger_type,
		signal_value, signal_reason, computed_at, source_subscription_key, metadata`
	if alertID == "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+cols+` FROM strategy_signals ORDER BY computed_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+cols+` FROM strategy_signals
			WHERE alert_id = $1 ORDER BY computed_at DESC LIMIT $2`, alertID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []*model.Signal
	for rows.Next() {
		var sig model.Signal
		var trigger string
		if err := rows.Scan(&sig.ID, &sig.AlertID, &sig.StrategyType, &sig.Symbol,
			&sig.Interval, &trigger, &sig.Value, &sig.Reason, &sig.ComputedAt,
			&sig.SourceKey, &sig.Metadata); err != nil {
			return nil, err
		}
		sig.TriggerType = model.TriggerType(trigger)
		out = append(out, &sig)
	}
	return out, rows.Err()
}
