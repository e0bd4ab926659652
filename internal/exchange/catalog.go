package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// symbolReplacer is the slice of the exchange info store the sync needs.
type symbolReplacer interface {
	ReplaceMarket(ctx context.Context, exchange, market string, symbols []model.SymbolInfo) error
}

// CatalogSync loads the instrument catalogue into exchange_info at start
// and refreshes it on a daily cadence so delistings and new listings show
// up without a restart.
type CatalogSync struct {
	rest   *RESTClient
	store  symbolReplacer
	logger *slog.Logger

	refreshEvery time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCatalogSync creates a CatalogSync.
func NewCatalogSync(rest *RESTClient, symbols symbolReplacer, logger *slog.Logger) *CatalogSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogSync{
		rest:         rest,
		store:        symbols,
		logger:       logger.With("component", "catalog_sync"),
		refreshEvery: 24 * time.Hour,
	}
}

// Start performs the initial load and launches the refresh loop. A failed
// initial load is an error: the gateway rejects symbol lookups until the
// catalogue exists.
func (s *CatalogSync) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.loadAll(s.ctx); err != nil {
		return fmt.Errorf("initial catalogue load: %w", err)
	}

	s.wg.Add(1)
	go s.refreshLoop()

	s.logger.Info("catalogue sync started")
	return nil
}

// Stop halts the refresh loop.
func (s *CatalogSync) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("catalogue sync stopped")
	case <-ctx.Done():
		s.logger.Warn("catalogue sync stop timed out")
	}
	return nil
}

func (s *CatalogSync) refreshLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.loadAll(s.ctx); err != nil {
				s.logger.Warn("catalogue refresh failed", "error", err)
			}
		}
	}
}

func (s *CatalogSync) loadAll(ctx context.Context) error {
	for _, market := range []Market{MarketSpot, MarketFutures} {
		infos, err := s.rest.ExchangeInfo(ctx, Exchange, market)
		if err != nil {
			return fmt.Errorf("load %s catalogue: %w", market, err)
		}
		if err := s.store.ReplaceMarket(ctx, Exchange, string(market), infos); err != nil {
			return err
		}
		s.logger.Info("catalogue loaded", "market", market, "symbols", len(infos))
	}
	return nil
}
