// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package api assembles the HTTP surface: the middleware chain, the versioned
route tree, and the health endpoints.

The chain, outermost first:

	RequestID -> StructuredLogger -> PanicRecovery -> Timeout ->
	SecurityHeaders -> CORS -> RateLimit (in-process backstop) ->
	Authenticate -> SessionGuard -> Throttle (adaptive tiers)

Authentication runs before the throttle so the user tier can key on the
verified subject; the session guard runs before the handlers so revoked
sessions die at the door regardless of endpoint.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/auth"
	"github.com/venlock/venlock/internal/license"
	"github.com/venlock/venlock/internal/platform/config"
	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/middleware"
	"github.com/venlock/venlock/internal/platform/sec"
	"github.com/venlock/venlock/internal/throttle"
)

// Dependencies carries everything the router needs, constructed in main.
type Dependencies struct {
	Logger *slog.Logger
	Config *config.Config

	Pool  *pgxpool.Pool
	Redis *goredis.Client

	Verifier middleware.TokenVerifier
	Sessions middleware.SessionChecker
	Throttle *throttle.Engine

	AuthHandler    *auth.Handler
	LicenseHandler *license.Handler
	AuditHandler   *audit.Handler
}

/*
NewRouter builds the complete request pipeline and route tree.

Parameters:
  - ctx: context.Context (bounds background middleware goroutines)
  - deps: Dependencies

Returns:
  - chi.Router: The root handler for http.Server
*/
func NewRouter(ctx context.Context, deps Dependencies) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(deps.Logger))
	router.Use(middleware.PanicRecovery(deps.Logger))
	router.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(deps.Config.CORSAllowedOrigins))
	router.Use(middleware.RateLimit(ctx))
	router.Use(middleware.Authenticate(deps.Verifier))
	router.Use(middleware.SessionGuard(deps.Sessions))
	router.Use(throttle.Middleware(deps.Throttle))

	health := NewHealthHandler(deps.Pool, deps.Redis)

	router.Route("/api/v1", func(api chi.Router) {
		api.Mount("/auth", deps.AuthHandler.Routes())
		api.Mount("/licenses", deps.LicenseHandler.Routes())

		// Admin user management, including the per-user license view.
		users := deps.AuthHandler.AdminRoutes()
		users.Get("/{id}/licenses", deps.LicenseHandler.UserLicenses)
		api.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireRole(sec.RoleAdmin))
			r.Mount("/", users)
		})

		api.Route("/audit", func(r chi.Router) {
			r.Use(middleware.RequireRole(sec.RoleAdmin))
			r.Mount("/", deps.AuditHandler.Routes())
		})
		api.With(middleware.RequireRole(sec.RoleAdmin)).Get("/stats", deps.AuditHandler.Stats)

		api.Get("/health", health.Live)
		api.With(middleware.RequireRole(sec.RoleAdmin)).Get("/health/details", health.Details)
	})

	return router
}

// NewServer wraps the router in an http.Server with the platform timeouts.
func NewServer(router http.Handler, port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       constants.DefaultReadTimeout,
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		WriteTimeout:      constants.DefaultWriteTimeout,
		IdleTimeout:       constants.DefaultIdleTimeout,
	}
}
