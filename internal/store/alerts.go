package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// AlertStore manages alert_configs. Triggers publish alert_config.new /
// .update / .delete, which the signal worker observes for live reload.
type AlertStore struct {
	db *pgxpool.Pool
}

// NewAlertStore creates an AlertStore.
func NewAlertStore(db *pgxpool.Pool) *AlertStore {
	return &AlertStore{db: db}
}

const alertColumns = `id, name, strategy_type, symbol, interval, trigger_type, params,
	is_enabled, created_by,
	(extract(epoch FROM created_at) * 1000)::bigint,
	(extract(epoch FROM updated_at) * 1000)::bigint`

// Create inserts a config.
func (s *AlertStore) Create(ctx context.Context, c *model.AlertConfig) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO alert_configs (id, name, strategy_type, symbol, interval,
			trigger_type, params, is_enabled, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.StrategyType, c.Symbol, c.Interval,
		string(c.TriggerType), c.Params, c.IsEnabled, c.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create alert config: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing config.
func (s *AlertStore) Update(ctx context.Context, c *model.AlertConfig) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE alert_configs
		SET name = $2, strategy_type = $3, symbol = $4, interval = $5,
		    trigger_type = $6, params = $7, is_enabled = $8, updated_at = now()
		WHERE id = $1`,
		c.ID, c.Name, c.StrategyType, c.Symbol, c.Interval,
		string(c.TriggerType), c.Params, c.IsEnabled,
	)
	if err != nil {
		return fmt.Errorf("update alert config %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (s *AlertStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE alert_configs SET is_enabled = $2, updated_at = now() WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("set alert config enabled %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a config (and, via cascade, its signals).
func (s *AlertStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM alert_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert config %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches one config.
func (s *AlertStore) Get(ctx context.Context, id string) (*model.AlertConfig, error) {
	row := s.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM alert_configs WHERE id = $1`, id)
	c, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert config %s: %w", id, err)
	}
	return c, nil
}

// List returns configs, optionally only enabled ones, newest first.
func (s *AlertStore) List(ctx context.Context, enabledOnly bool) ([]*model.AlertConfig, error) {
	q := `SELECT ` + alertColumns + ` FROM alert_configs`
	if enabledOnly {
		q += ` WHERE is_enabled`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list alert configs: %w", err)
	}
	defer rows.Close()

	var out []*model.AlertConfig
	for rows.Next() {
		c, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*model.AlertConfig, error) {
	var c model.AlertConfig
	var trigger string
	if err := row.Scan(&c.ID, &c.Name, &c.StrategyType, &c.Symbol, &c.Interval,
		&trigger, &c.Params, &c.IsEnabled, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.TriggerType = model.TriggerType(trigger)
	return &c, nil
}
