package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leaderboard-mirror/internal/config"
	"github.com/leaderboard-mirror/internal/handler"
	"github.com/leaderboard-mirror/internal/postgres"
	"github.com/leaderboard-mirror/internal/redis"
	"github.com/leaderboard-mirror/internal/service"
	"github.com/leaderboard-mirror/internal/upstream"
	"github.com/leaderboard-mirror/internal/websocket"
	"github.com/leaderboard-mirror/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	if cfg.Upstream.Token == "" {
		logger.Warn("upstream token is missing, sync will fail")
	}
	if cfg.Upstream.BoardID == "" {
		logger.Error("upstream board_id is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	store, err := postgres.NewStore(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := store.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize upstream client and mirror service
	client := upstream.NewClient(&cfg.Upstream, logger)
	mirror := service.NewMirror(store, client, cfg, logger)
	mirror.SetHub(wsHub)

	// Optional Redis view cache
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		viewCache, err := redis.NewViewCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without view cache", "error", err)
		} else {
			mirror.SetViewCache(viewCache)
			defer viewCache.Close()
			logger.Info("connected to Redis")
		}
	}

	// Run an initial full sync in the background when the mirror is empty
	meta, err := store.ReadMetadata(ctx)
	if err != nil {
		logger.Error("failed to read sync metadata", "error", err)
		os.Exit(1)
	}
	if meta.TotalUsers == 0 {
		logger.Info("mirror is empty, starting initial full sync")
		go func() {
			if err := mirror.RunFullSync(ctx); err != nil {
				logger.Error("initial full sync failed", "error", err)
			}
		}()
	}

	// Start the job scheduler
	scheduler := worker.NewScheduler(mirror, &cfg.Sync, &cfg.Scan, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(mirror, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop scheduler
	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
