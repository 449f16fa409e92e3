package health

import (
	"context"
	"crypto/subtle"
	"time"

	healthsvc "talentgate-backend/internal/application/health"
	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const serviceName = "talentgate-api"

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Deps           healthsvc.Deps
	HealthAdminKey string
}

// Reset clears health stats in Redis. Requires query key=HEALTH_ADMIN_KEY.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if h.Deps.Redis == nil {
		return response.Error(c, "Redis is not configured", fiber.StatusServiceUnavailable, nil)
	}
	if err := healthsvc.Reset(context.Background(), h.Deps.Redis, time.Now()); err != nil {
		log.Error().Err(err).Msg("health: reset failed")
		return response.Error(c, "Failed to reset stats", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns service health. 503 when a required dependency is down, so
// load balancers can act on the status code alone.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	result := healthsvc.CollectHealth(ctx, h.Deps)
	status := fiber.StatusOK
	if result.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"service":      serviceName,
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
		"queueDepth":   result.QueueDepth,
	})
}

// Errors returns the last 50 error log entries.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Deps.Redis == nil {
		return c.JSON([]healthsvc.ErrorEntry{})
	}
	entries, err := healthsvc.RecentErrors(context.Background(), h.Deps.Redis, 50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]healthsvc.ErrorEntry{})
	}
	return c.JSON(entries)
}
