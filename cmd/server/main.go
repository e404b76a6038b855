package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/api"
	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/Priya8975/minutes-live-sync/internal/config"
	"github.com/Priya8975/minutes-live-sync/internal/drafts"
	"github.com/Priya8975/minutes-live-sync/internal/livebus"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	"github.com/Priya8975/minutes-live-sync/internal/store"
	"github.com/Priya8975/minutes-live-sync/internal/throttle"
	ws "github.com/Priya8975/minutes-live-sync/internal/websocket"
	"github.com/Priya8975/minutes-live-sync/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Initialize Redis
	var redisStore *store.RedisStore
	if cfg.NeedsRedis() {
		redisStore, err = store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")
	}

	// Draft storage
	var kv drafts.KV
	switch cfg.DraftBackend {
	case config.BackendPostgres:
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
		kv = pgStore
	case config.BackendRedis:
		kv = redisStore
	default:
		kv = drafts.NewMemoryKV()
	}
	draftStore := drafts.NewStore(kv, logger, m)

	// Live bus
	var transport livebus.Transport
	if cfg.LiveTransport == config.BackendRedis {
		transport = livebus.NewRedisTransport(redisStore.Client(), logger)
	} else {
		transport = livebus.NewMemoryTransport()
	}
	bus := livebus.New(transport, logger, m)
	if err := bus.Start(ctx); err != nil {
		// Same-process delivery still works without the relay.
		logger.Error("cross-tab relay unavailable", "error", err)
	} else {
		logger.Info("live bus started", "bus_id", bus.ID(), "transport", cfg.LiveTransport)
	}

	var limiter ws.Limiter
	if redisStore != nil && cfg.EmitRateLimit > 0 {
		limiter = throttle.NewRateLimiter(redisStore.Client(), cfg.EmitRateLimit, logger)
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	hub := ws.NewHub(bus, limiter, logger, m)
	go hub.Run(ctx)

	// Setup router
	router := api.NewRouter(api.Deps{
		Drafts:  draftStore,
		Bus:     bus,
		Hub:     hub,
		Auth:    jwtManager,
		Limiter: limiter,
		Metrics: m,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	logger.Info("server stopped")
}
