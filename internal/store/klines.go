package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// KlineStore manages klines_history: append-only bars keyed by
// (symbol, interval, open_time), upserted on conflict to repair in-flight
// gaps.
type KlineStore struct {
	db *pgxpool.Pool
}

// NewKlineStore creates a KlineStore.
func NewKlineStore(db *pgxpool.Pool) *KlineStore {
	return &KlineStore{db: db}
}

const klineColumns = `symbol, interval, open_time, close_time, open, high, low, close,
	volume, quote_volume, trades, taker_buy_base_volume, taker_buy_quote_volume`

// UpsertBatch writes bars in one round trip.
func (s *KlineStore) UpsertBatch(ctx context.Context, klines []model.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, k := range klines {
		batch.Queue(`
			INSERT INTO klines_history (`+klineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (symbol, interval, open_time) DO UPDATE
			SET close_time = EXCLUDED.close_time,
			    open = EXCLUDED.open, high = EXCLUDED.high,
			    low = EXCLUDED.low, close = EXCLUDED.close,
			    volume = EXCLUDED.volume, quote_volume = EXCLUDED.quote_volume,
			    trades = EXCLUDED.trades,
			    taker_buy_base_volume = EXCLUDED.taker_buy_base_volume,
			    taker_buy_quote_volume = EXCLUDED.taker_buy_quote_volume`,
			k.Symbol, k.Interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close,
			k.Volume, k.QuoteVolume, k.Trades, k.TakerBuyBaseVolume, k.TakerBuyQuoteVol,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range klines {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert klines: %w", err)
		}
	}
	return nil
}

// Range returns bars with open_time in [from, to], ascending.
func (s *KlineStore) Range(ctx context.Context, symbol, interval string, from, to int64) ([]model.Kline, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+klineColumns+`
		FROM klines_history
		WHERE symbol = $1 AND interval = $2 AND open_time BETWEEN $3 AND $4
		ORDER BY open_time`,
		symbol, interval, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("range klines: %w", err)
	}
	defer rows.Close()
	return scanKlines(rows)
}

// Last returns the newest n bars, ascending by open time.
func (s *KlineStore) Last(ctx context.Context, symbol, interval string, n int) ([]model.Kline, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+klineColumns+` FROM (
			SELECT `+klineColumns+`
			FROM klines_history
			WHERE symbol = $1 AND interval = $2
			ORDER BY open_time DESC LIMIT $3
		) t ORDER BY open_time`,
		symbol, interval, n,
	)
	if err != nil {
		return nil, fmt.Errorf("last klines: %w", err)
	}
	defer rows.Close()
	return scanKlines(rows)
}

// HasEndpoints probes whether bars exist at both aligned endpoints. When
// both are present the requested range is served from history without an
// upstream round trip.
func (s *KlineStore) HasEndpoints(ctx context.Context, symbol, interval string, from, to int64) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM klines_history
		WHERE symbol = $1 AND interval = $2 AND open_time IN ($3, $4)`,
		symbol, interval, from, to,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("probe kline endpoints: %w", err)
	}
	want := 2
	if from == to {
		want = 1
	}
	return count >= want, nil
}

func scanKlines(rows pgx.Rows) ([]model.Kline, error) {
	var out []model.Kline
	for rows.Next() {
		var k model.Kline
		if err := rows.Scan(
			&k.Symbol, &k.Interval, &k.OpenTime, &k.CloseTime,
			&k.Open, &k.High, &k.Low, &k.Close,
			&k.Volume, &k.QuoteVolume, &k.Trades,
			&k.TakerBuyBaseVolume, &k.TakerBuyQuoteVol,
		); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
