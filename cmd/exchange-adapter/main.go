package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/database"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/exchange"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/adapter.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting exchange adapter",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAdapter(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Bootstrap(ctx, pool); err != nil {
		logger.Error("failed to bootstrap schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	rest := exchange.NewRESTClient(cfg.Exchange,
		exchange.WithLogger(logger),
		exchange.WithRetries(cfg.Exchange.MaxRetries, time.Second),
	)

	// Upstream reachability check before taking work.
	serverTime, err := rest.ServerTime(ctx, exchange.MarketSpot)
	if err != nil {
		logger.Error("exchange unreachable", "error", err)
		os.Exit(1)
	}
	logger.Info("exchange reachable", "server_time", serverTime)

	realtime := store.NewRealtimeStore(pool)
	runner := exchange.NewTaskRunner(cfg.Tasks, rest, exchange.RunnerStores{
		Tasks:    store.NewTaskStore(pool),
		Klines:   store.NewKlineStore(pool),
		Accounts: store.NewAccountStore(pool),
		Realtime: realtime,
		Symbols:  store.NewExchangeInfoStore(pool),
	}, logger)
	catalog := exchange.NewCatalogSync(rest, store.NewExchangeInfoStore(pool), logger)
	mux := exchange.NewMultiplexer(cfg.Exchange, realtime, logger)

	listener := notify.NewListener(notify.ListenerConfig{
		DB:               cfg.Database,
		ReconnectBackoff: cfg.Exchange.ReconnectBackoff,
	}, logger)
	runner.Register(listener)
	mux.Register(listener)

	if err := catalog.Start(ctx); err != nil {
		logger.Error("failed to load instrument catalogue", "error", err)
		os.Exit(1)
	}
	if err := runner.Start(ctx); err != nil {
		logger.Error("failed to start task runner", "error", err)
		os.Exit(1)
	}
	if err := mux.Start(ctx); err != nil {
		logger.Error("failed to start multiplexer", "error", err)
		os.Exit(1)
	}
	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	healthServer := startHealthServer(cfg.Health, pool, mux, listener, logger)

	logger.Info("exchange adapter running", "instance_id", cfg.Instance.ID)
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	listener.Stop(shutdownCtx)
	mux.Stop(shutdownCtx)
	runner.Stop(shutdownCtx)
	catalog.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("exchange adapter stopped")
}

func startHealthServer(cfg config.HealthConfig, pool *pgxpool.Pool, mux *exchange.Multiplexer, listener notify.Listener, logger *slog.Logger) *http.Server {
	handler := http.NewServeMux()
	handler.HandleFunc(cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		ms := mux.Stats()
		health.Components["streams"] = map[string]any{
			"spot_connected": ms.SpotConnected,
			"spot_streams":   ms.SpotStreams,
			"perp_connected": ms.PerpConnected,
			"perp_streams":   ms.PerpStreams,
		}
		if (ms.SpotStreams > 0 && !ms.SpotConnected) || (ms.PerpStreams > 0 && !ms.PerpConnected) {
			health.Status = "degraded"
		}

		ls := listener.Stats()
		health.Components["listener"] = map[string]any{
			"received":   ls.Received,
			"dispatched": ls.Dispatched,
			"dropped":    ls.Dropped,
			"reconnects": ls.Reconnects,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}
	go func() {
		logger.Info("health server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	return server
}
