package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// Backfiller fills a series buffer from history via the task queue. Each
// fill runs on its own waiter connection, so slow symbols do not block
// each other.
type Backfiller struct {
	cfg    config.SignalsConfig
	db     config.DBConfig
	tasks  *store.TaskStore
	klines *store.KlineStore
	logger *slog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(cfg config.SignalsConfig, db config.DBConfig, tasks *store.TaskStore, klines *store.KlineStore, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		cfg:    cfg,
		db:     db,
		tasks:  tasks,
		klines: klines,
		logger: logger.With("component", "backfiller"),
	}
}

// Fill blocks until history holds `need` contiguous bars for the series
// or ctx ends. Each iteration enqueues a fetch task, waits bounded for
// its completion, then re-reads and re-validates; there is no iteration
// cap, only the context bounds the loop.
func (b *Backfiller) Fill(ctx context.Context, symbol, resolution string, need int) ([]model.Kline, error) {
	period, err := subkey.Period(resolution)
	if err != nil {
		return nil, err
	}

	waiter := notify.NewTaskWaiter(b.db, b.logger)
	defer waiter.Close(context.Background())

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		to, err := subkey.AlignTime(time.Now().UnixMilli(), resolution)
		if err != nil {
			return nil, err
		}
		from := to - int64(need-1)*period.Milliseconds()

		taskID, err := b.tasks.Insert(ctx, model.TaskGetKlines, model.KlinesTaskParams{
			Symbol:   symbol,
			Interval: resolution,
			FromTime: from,
			ToTime:   to,
			Limit:    b.cfg.BackfillLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueue backfill: %w", err)
		}

		ev, done, err := waiter.Wait(ctx, taskID, b.cfg.BackfillWait)
		if err != nil {
			b.logger.Warn("backfill wait failed", "symbol", symbol, "error", err)
		} else if done && ev.Status == string(model.TaskFailed) {
			b.logger.Warn("backfill task failed", "symbol", symbol, "task", taskID)
		}

		// Whatever happened, the table is the source of truth.
		bars, err := b.klines.Last(ctx, symbol, resolution, need)
		if err != nil {
			return nil, err
		}
		if validSeries(bars, need, period, b.cfg.GapFactor) {
			b.logger.Info("series filled",
				"symbol", symbol,
				"resolution", resolution,
				"bars", len(bars),
				"attempts", attempt,
			)
			return bars, nil
		}

		b.logger.Debug("series incomplete, retrying",
			"symbol", symbol,
			"resolution", resolution,
			"bars", len(bars),
			"attempt", attempt,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.cfg.BackfillRetry):
		}
	}
}

// validSeries checks count and contiguity the same way Buffer.Valid does.
func validSeries(bars []model.Kline, need int, period time.Duration, gapFactor float64) bool {
	if len(bars) < need {
		return false
	}
	if gapFactor <= 1 {
		gapFactor = 1.5
	}
	threshold := time.Duration(float64(period) * gapFactor)
	for i := 1; i < len(bars); i++ {
		if time.Duration(bars[i].OpenTime-bars[i-1].OpenTime)*time.Millisecond > threshold {
			return false
		}
	}
	return true
}
