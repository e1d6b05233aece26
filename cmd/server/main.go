// Package main is the entrypoint for the adversary API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/noperle/bsides-ldn-2019/internal/api"
	"github.com/noperle/bsides-ldn-2019/internal/api/handler"
	mw "github.com/noperle/bsides-ldn-2019/internal/api/middleware"
	"github.com/noperle/bsides-ldn-2019/internal/api/response"
	"github.com/noperle/bsides-ldn-2019/internal/cache"
	"github.com/noperle/bsides-ldn-2019/internal/config"
	"github.com/noperle/bsides-ldn-2019/internal/dispatch"
	"github.com/noperle/bsides-ldn-2019/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and dispatcher
	pgStore := store.NewPostgresStore(pool)

	registry := dispatch.NewRegistry()
	dispatcher := dispatch.New(pgStore, redisCache, registry, cfg.Dispatch.PollInterval, cfg.Dispatch.StatusTTL)
	slog.Info("dispatcher ready",
		"poll_interval", cfg.Dispatch.PollInterval,
		"wait_timeout", cfg.Dispatch.WaitTimeout)

	// 6. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache, registry),

		RegisterAgentHandler: handler.NewRegisterAgentHandler(pgStore),
		CheckinHandler:       handler.NewCheckinHandler(dispatcher),
		RegisterRatHandler:   handler.NewRegisterRatHandler(pgStore),
		JobResultHandler:     handler.NewJobResultHandler(dispatcher),

		HostCommandHandler: handler.NewHostCommandHandler(pgStore, dispatcher),
		RatCommandHandler:  handler.NewRatCommandHandler(pgStore, dispatcher),
		GetJobHandler:      handler.NewGetJobHandler(pgStore, redisCache),
		WaitJobHandler:     handler.NewWaitJobHandler(pgStore, dispatcher, cfg.Dispatch.WaitTimeout),
		DeleteJobHandler:   handler.NewDeleteJobHandler(dispatcher),
		ListHostsHandler:   handler.NewListHostsHandler(pgStore),
		ListRatsHandler:    handler.NewListRatsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity and reports the
// number of jobs with live wakeup signals.
func healthHandler(s store.Store, c cache.Cache, reg *dispatch.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		checks["wakeup_signals"] = strconv.Itoa(reg.Size())

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
