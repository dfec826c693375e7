// Copyright (c) 2026 Venlock. All rights reserved.

package api

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/postgres"
	"github.com/venlock/venlock/internal/platform/redis"
	"github.com/venlock/venlock/internal/platform/respond"
)

// HealthHandler serves liveness and dependency health.
type HealthHandler struct {
	pool      *pgxpool.Pool
	redis     *goredis.Client
	startedAt time.Time
}

// NewHealthHandler constructs a new [HealthHandler].
func NewHealthHandler(pool *pgxpool.Pool, client *goredis.Client) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		redis:     client,
		startedAt: time.Now().UTC(),
	}
}

/*
Live is the load-balancer probe: the process is up and serving.

GET /api/v1/health

Response:
  - 200: Name and version
*/
func (handler *HealthHandler) Live(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, map[string]any{
		"status":  "ok",
		"name":    constants.AppName,
		"version": constants.AppVersion,
	})
}

/*
Details reports per-dependency health for the admin dashboard.

GET /api/v1/health/details

Response:
  - 200: All dependencies reachable
  - 503: One or more dependencies down (same body shape)
*/
func (handler *HealthHandler) Details(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	components := map[string]string{
		"postgres": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := postgres.Ping(ctx, handler.pool); err != nil {
		components["postgres"] = err.Error()
		healthy = false
	}
	if err := redis.Ping(ctx, handler.redis); err != nil {
		components["redis"] = err.Error()
		healthy = false
	}

	stats := handler.pool.Stat()
	payload := map[string]any{
		"status":     "ok",
		"name":       constants.AppName,
		"version":    constants.AppVersion,
		"uptime":     time.Since(handler.startedAt).Round(time.Second).String(),
		"components": components,
		"db_pool": map[string]any{
			"total_conns": stats.TotalConns(),
			"idle_conns":  stats.IdleConns(),
			"max_conns":   stats.MaxConns(),
		},
	}

	statusCode := http.StatusOK
	if !healthy {
		payload["status"] = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	respond.JSON(writer, statusCode, respond.Envelope{
		Success:    healthy,
		StatusCode: statusCode,
		Data:       payload,
	})
}
