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
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/gateway"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadGateway(*configPath)
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

	// Stores
	stores := gateway.RouterStores{
		Klines:   store.NewKlineStore(pool),
		Alerts:   store.NewAlertStore(pool),
		Signals:  store.NewSignalStore(pool),
		Accounts: store.NewAccountStore(pool),
		Symbols:  store.NewExchangeInfoStore(pool),
		Tasks:    store.NewTaskStore(pool),
	}
	realtime := store.NewRealtimeStore(pool)

	// Registry, hub, router, dispatcher
	registry := gateway.NewRegistry(cfg.Instance.ID, realtime, logger)
	if err := registry.CleanStart(ctx); err != nil {
		logger.Error("failed to clean stale subscriptions", "error", err)
		os.Exit(1)
	}

	hub := gateway.NewHub(cfg, registry, logger)
	router := gateway.NewRouter(hub, registry, stores, logger)
	hub.SetHandler(router)
	dispatcher := gateway.NewDispatcher(hub, stores.Klines, stores.Accounts, logger)

	listener := notify.NewListener(notify.ListenerConfig{
		DB: cfg.Database,
	}, logger)
	dispatcher.Register(listener)

	if err := hub.Start(ctx); err != nil {
		logger.Error("failed to start hub", "error", err)
		os.Exit(1)
	}
	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	// Client-facing WebSocket server
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("websocket server listening", "addr", server.Addr, "path", cfg.Server.Path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("websocket server error", "error", err)
			cancel()
		}
	}()

	healthServer := startHealthServer(cfg.Health, pool, hub, listener, logger)

	logger.Info("gateway running", "instance_id", cfg.Instance.ID)
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	server.Shutdown(shutdownCtx)
	hub.Stop(shutdownCtx)
	listener.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("gateway stopped")
}

// startHealthServer serves liveness plus hub and listener counters.
func startHealthServer(cfg config.HealthConfig, pool *pgxpool.Pool, hub *gateway.Hub, listener notify.Listener, logger *slog.Logger) *http.Server {
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

		hs := hub.Stats()
		health.Components["hub"] = map[string]any{
			"sessions":       hs.Sessions,
			"pending_tasks":  hs.PendingTasks,
			"frames_sent":    hs.FramesSent,
			"frames_dropped": hs.FramesDropped,
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
