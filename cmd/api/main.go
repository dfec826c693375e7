// Copyright (c) 2026 Venlock. All rights reserved.

// Command api is the Venlock licensing and authentication server.
//
// Startup order matters: configuration, then durable storage, then volatile
// storage, then migrations, then the domain wiring, and only then the
// listener. Any failure before the listener is fatal; after that the process
// only exits on signal.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/venlock/venlock/internal/api"
	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/auth"
	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/email"
	"github.com/venlock/venlock/internal/license"
	"github.com/venlock/venlock/internal/platform/config"
	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/migration"
	"github.com/venlock/venlock/internal/platform/postgres"
	"github.com/venlock/venlock/internal/platform/redis"
	"github.com/venlock/venlock/internal/platform/sec"
	"github.com/venlock/venlock/internal/throttle"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// 2. Configuration
	cfg, err := config.Load()
	must(logger, "config_load", err)

	if cfg.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// 3. PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, logger)
	must(logger, "postgres_connect", err)
	defer pool.Close()

	// 4. Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL, logger)
	must(logger, "redis_connect", err)
	defer func() { _ = redisClient.Close() }()

	// 5. Schema migrations
	must(logger, "migrations", migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, logger))

	// 6. Signing service
	tokenService, err := sec.NewTokenService([]byte(cfg.JWT.Key), cfg.JWT.Issuer, cfg.JWT.Audience)
	must(logger, "token_service", err)

	// 7. Domain wiring
	store := cache.NewRedisStore(redisClient)
	sessions := auth.NewSessionStore(store)
	tokenManager := auth.NewTokenManager(tokenService, sessions, cfg.JWT.AccessTokenTTL(), cfg.JWT.RefreshTokenTTL())

	auditRepository := audit.NewRepository(pool)
	mailer := email.NewSMTPMailer(cfg.Email, logger)

	authService := auth.NewService(
		auth.NewUserRepository(pool),
		tokenManager,
		auth.NewResetTokenRepository(store),
		auth.NewVerificationTokenRepository(store),
		mailer,
		auditRepository,
	)

	licenseService := license.NewService(
		license.NewRepository(pool),
		license.NewActivationRepository(pool),
		auditRepository,
		cfg.License,
	)

	// 8. Expiration worker
	sweeper := license.NewSweeper(license.NewRepository(pool), auditRepository, logger, cfg.License.SweepInterval)
	go sweeper.Run(ctx)

	// 9. HTTP surface
	router := api.NewRouter(ctx, api.Dependencies{
		Logger:         logger,
		Config:         cfg,
		Pool:           pool,
		Redis:          redisClient,
		Verifier:       tokenService,
		Sessions:       sessions,
		Throttle:       throttle.NewEngine(store, cfg.Throttle),
		AuthHandler:    auth.NewHandler(authService),
		LicenseHandler: license.NewHandler(licenseService),
		AuditHandler:   audit.NewHandler(auditRepository),
	})

	server := api.NewServer(router, cfg.ServerPort)

	// 10. Serve until signalled
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_listening",
			slog.String("port", cfg.ServerPort),
			slog.String("environment", cfg.Environment),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			must(logger, "server_listen", err)
		}
	case <-ctx.Done():
	}

	// 11. Graceful shutdown
	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", slog.String("error", err.Error()))
	}

	logger.Info("server_stopped")
}

// must aborts startup on a fatal wiring error.
func must(logger *slog.Logger, stage string, err error) {
	if err == nil {
		return
	}
	logger.Error("startup_failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	os.Exit(1)
}
