package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
)

// Connect creates a connection pool for the shared database.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// ConnectListen opens a single dedicated connection for LISTEN traffic.
//
// Listen state is per-connection; a pooled connection would lose its
// registrations on rotation, so listeners must never come from the pool.
func ConnectListen(ctx context.Context, cfg config.DBConfig) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect listen conn: %w", err)
	}
	return conn, nil
}
