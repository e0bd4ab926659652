package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// ErrNotInitialized marks a read against exchange_info before the adapter
// has loaded it; clients are expected to retry.
var ErrNotInitialized = errors.New("exchange info not initialized")

// ExchangeInfoStore holds the instrument catalogue loaded by the adapter
// and consulted read-only by the gateway for symbol search and resolve.
type ExchangeInfoStore struct {
	db *pgxpool.Pool
}

// NewExchangeInfoStore creates an ExchangeInfoStore.
func NewExchangeInfoStore(db *pgxpool.Pool) *ExchangeInfoStore {
	return &ExchangeInfoStore{db: db}
}

// ReplaceMarket swaps the catalogue for one (exchange, market) pair.
func (s *ExchangeInfoStore) ReplaceMarket(ctx context.Context, exchange, market string, symbols []model.SymbolInfo) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace exchange info: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM exchange_info WHERE exchange = $1 AND market = $2`,
		exchange, market); err != nil {
		return fmt.Errorf("clear exchange info: %w", err)
	}

	batch := &pgx.Batch{}
	for _, sym := range symbols {
		batch.Queue(`
			INSERT INTO exchange_info (exchange, market, symbol, base_asset,
				quote_asset, status, price_precision, volume_precision)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			exchange, market, sym.Symbol, sym.BaseAsset, sym.QuoteAsset,
			sym.Status, sym.PricePrecision, sym.VolumePrecision,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range symbols {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert exchange info: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Search returns instruments matching the query by symbol or base asset.
func (s *ExchangeInfoStore) Search(ctx context.Context, query, exchange, market string, limit int) ([]model.SymbolInfo, error) {
	if limit <= 0 {
		limit = 30
	}
	if exchange == "" {
		exchange = "BINANCE"
	}

	pattern := "%" + strings.ToUpper(query) + "%"
	var rows pgx.Rows
	var err error
	const cols = `exchange, market, symbol, base_asset, quote_asset, status,
		price_precision, volume_precision`
	if market == "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+cols+` FROM exchange_info
			WHERE exchange = $1 AND (symbol LIKE $2 OR base_asset LIKE $2)
			ORDER BY symbol LIMIT $3`,
			exchange, pattern, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+cols+` FROM exchange_info
			WHERE exchange = $1 AND market = $2 AND (symbol LIKE $3 OR base_asset LIKE $3)
			ORDER BY symbol LIMIT $4`,
			exchange, market, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// Resolve looks up a full symbol of the form "BINANCE:BTCUSDT[.PERP]".
func (s *ExchangeInfoStore) Resolve(ctx context.Context, symbol string) (*model.SymbolInfo, error) {
	exchange, raw, market, err := splitSymbol(symbol)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx, `
		SELECT exchange, market, symbol, base_asset, quote_asset, status,
		       price_precision, volume_precision
		FROM exchange_info
		WHERE exchange = $1 AND market = $2 AND symbol = $3`,
		exchange, market, raw,
	)

	var info model.SymbolInfo
	err = row.Scan(&info.Exchange, &info.Market, &info.Symbol, &info.BaseAsset,
		&info.QuoteAsset, &info.Status, &info.PricePrecision, &info.VolumePrecision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve symbol %s: %w", symbol, err)
	}
	return &info, nil
}

// Initialized reports whether the adapter has loaded any catalogue rows.
func (s *ExchangeInfoStore) Initialized(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exchange_info)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe exchange info: %w", err)
	}
	return exists, nil
}

// splitSymbol decomposes "BINANCE:BTCUSDT.PERP" into its catalogue key.
func splitSymbol(symbol string) (exchange, raw, market string, err error) {
	colon := strings.Index(symbol, ":")
	if colon <= 0 || colon == len(symbol)-1 {
		return "", "", "", fmt.Errorf("%w: %q", subkey.ErrMalformed, symbol)
	}
	exchange = symbol[:colon]
	raw = symbol[colon+1:]
	market = "spot"
	if dot := strings.Index(raw, "."); dot >= 0 {
		if strings.EqualFold(raw[dot+1:], subkey.PerpSuffix) {
			market = "perp"
		}
		raw = raw[:dot]
	}
	return exchange, raw, market, nil
}

func scanSymbols(rows pgx.Rows) ([]model.SymbolInfo, error) {
	var out []model.SymbolInfo
	for rows.Next() {
		var info model.SymbolInfo
		if err := rows.Scan(&info.Exchange, &info.Market, &info.Symbol, &info.BaseAsset,
			&info.QuoteAsset, &info.Status, &info.PricePrecision, &info.VolumePrecision); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
