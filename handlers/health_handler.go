package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type cachePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports rule store and dispatch cache connectivity.
type HealthHandler struct {
	db           pinger
	cache        cachePinger
	checkTimeout time.Duration
}

// NewHealthHandler accepts a nil cache when valkey is not configured.
func NewHealthHandler(db pinger, cache cachePinger) *HealthHandler {
	return &HealthHandler{
		db:           db,
		cache:        cache,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and basic component statuses (DB and Redis).
// @Summary Health check
// @Description Returns overall status with DB and Redis connectivity results
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"
	code := http.StatusOK

	dbStatus := "up"
	if h.db == nil || h.db.PingContext(ctx) != nil {
		dbStatus = "down"
		overallStatus = "down"
		code = http.StatusServiceUnavailable
	}

	// The engine runs without the cache, so a cache outage only degrades.
	redisStatus := "disabled"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			redisStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			redisStatus = "up"
		}
	}

	return c.JSON(code, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
		},
	})
}
