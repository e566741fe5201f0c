// Evo Lobby - multiplayer evolution lobby server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/evo-lobby/internal/api"
	"github.com/ashureev/evo-lobby/internal/config"
	"github.com/ashureev/evo-lobby/internal/game"
	"github.com/ashureev/evo-lobby/internal/identity"
	"github.com/ashureev/evo-lobby/internal/middleware"
	"github.com/ashureev/evo-lobby/internal/replay"
	"github.com/ashureev/evo-lobby/internal/store"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	tu := tuning.Default()
	if cfg.TuningPath != "" {
		tu, err = tuning.Load(cfg.TuningPath)
		if err != nil {
			slog.Error("Failed to load tuning", "error", err, "path", cfg.TuningPath)
			os.Exit(1)
		}
		slog.Info("Tuning loaded", "path", cfg.TuningPath)
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Initialize services.
	var opts []game.Option
	if cfg.SimSeed != nil {
		opts = append(opts, game.WithSeed(*cfg.SimSeed))
		slog.Info("Deterministic day seeds enabled", "seed", *cfg.SimSeed)
	}
	svc := game.NewService(repo, tu, opts...)
	viewers := replay.NewViewers()
	streamer := replay.NewStreamer(svc, viewers, cfg.OriginPatterns())
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// Initialize handlers.
	lobbyHandler := api.NewHandler(svc, streamer)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(limiter.Limit)
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	lobbyHandler.RegisterRoutes(r)

	// Replay streams stay open for a whole day, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start rate limiter sweeper.
	go func() {
		ticker := time.NewTicker(cfg.RateLimit.Sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					slog.Debug("Rate limiter swept", "visitors_removed", n)
				}
			}
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// Hijacked replay connections are not tracked by Shutdown.
	if n := viewers.CloseAll("server shutting down"); n > 0 {
		slog.Info("Closed replay streams", "count", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
