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

// AccountStore keeps one snapshot row per account type.
type AccountStore struct {
	db *pgxpool.Pool
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{db: db}
}

// Upsert writes the snapshot for an account type.
func (s *AccountStore) Upsert(ctx context.Context, accountType string, data json.RawMessage, updateTime int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO account_info (account_type, data, update_time, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_type) DO UPDATE
		SET data = EXCLUDED.data, update_time = EXCLUDED.update_time, updated_at = now()`,
		accountType, data, updateTime,
	)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", accountType, err)
	}
	return nil
}

// Get fetches the snapshot for an account type.
func (s *AccountStore) Get(ctx context.Context, accountType string) (*model.AccountSnapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT account_type, data, update_time,
		       (extract(epoch FROM updated_at) * 1000)::bigint
		FROM account_info WHERE account_type = $1`,
		accountType,
	)

	var a model.AccountSnapshot
	err := row.Scan(&a.AccountType, &a.Data, &a.UpdateTime, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountType, err)
	}
	return &a, nil
}
