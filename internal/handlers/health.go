package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// Pinger is anything whose liveness the health check reports.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CacheStatus reports balance cache health and pool statistics.
type CacheStatus interface {
	HealthCheck(ctx context.Context) error
	GetStats() *redis.PoolStats
}

type HealthHandler struct {
	db    Pinger
	cache CacheStatus
}

func NewHealthHandler(db Pinger, cache CacheStatus) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := fiber.StatusOK
	database := "connected"
	if err := h.db.PingContext(ctx); err != nil {
		database = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	// The cache is read-through, so an outage degrades but does not fail.
	cache := "connected"
	if h.cache == nil {
		cache = "disabled"
	} else if err := h.cache.HealthCheck(ctx); err != nil {
		cache = "unavailable"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"version": "1.0.0",
		"services": fiber.Map{
			"database": database,
			"redis":    cache,
		},
	})
}

func (h *HealthHandler) CacheStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.JSON(fiber.Map{"pool_stats": nil})
	}
	poolStats := h.cache.GetStats()

	return c.JSON(fiber.Map{
		"pool_stats": fiber.Map{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"timeouts":    poolStats.Timeouts,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
			"stale_conns": poolStats.StaleConns,
		},
	})
}
