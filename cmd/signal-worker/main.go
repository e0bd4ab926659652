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
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	sig "github.com/mj2154/quant-trading-system-2602-sub000/internal/signal"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/worker.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting signal worker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadWorker(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("received shutdown signal", "signal", s)
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

	backfiller := sig.NewBackfiller(cfg.Signals, cfg.Database,
		store.NewTaskStore(pool), store.NewKlineStore(pool), logger)

	worker := sig.NewWorker(*cfg, sig.WorkerStores{
		Alerts:   store.NewAlertStore(pool),
		Signals:  store.NewSignalStore(pool),
		Realtime: store.NewRealtimeStore(pool),
	}, backfiller, logger)

	listener := notify.NewListener(notify.ListenerConfig{
		DB: cfg.Database,
	}, logger)
	worker.Register(listener)

	if err := worker.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	healthServer := startHealthServer(cfg.Health, pool, listener, logger)

	logger.Info("signal worker running", "instance_id", cfg.Instance.ID)
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	listener.Stop(shutdownCtx)
	worker.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("signal worker stopped")
}

func startHealthServer(cfg config.HealthConfig, pool *pgxpool.Pool, listener notify.Listener, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, func(w http.ResponseWriter, r *http.Request) {
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
		Handler: mux,
	}
	go func() {
		logger.Info("health server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	return server
}
