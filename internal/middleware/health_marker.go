package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	healthsvc "talentgate-backend/internal/application/health"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthMarker records request stats in Redis (skip /health*, favicon).
// Responses with status >= 500 are also appended to the error log.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		lastReq := map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   path,
			"method": c.Method(),
		}
		b, _ := json.Marshal(lastReq)
		ctx := context.Background()
		_, _ = rdb.Set(ctx, healthsvc.KeyLastReq, b, 0).Result()
		_, _ = rdb.Incr(ctx, healthsvc.KeyReqTotal).Result()

		chainErr := c.Next()
		err := flushError(c, chainErr)

		ms := time.Since(start).Milliseconds()
		_, _ = rdb.Incr(ctx, healthsvc.KeyResCount).Result()
		_, _ = rdb.IncrByFloat(ctx, healthsvc.KeyResTime, float64(ms)).Result()
		if status := c.Response().StatusCode(); status >= 500 {
			_, _ = rdb.Incr(ctx, healthsvc.KeyReqErrors).Result()
			msg := "Internal Server Error"
			if chainErr != nil {
				msg = chainErr.Error()
			}
			_ = healthsvc.RecordError(ctx, rdb, healthsvc.ErrorEntry{
				Time:    start,
				Method:  c.Method(),
				Path:    path,
				Status:  status,
				TraceID: GetTraceID(c),
				Message: msg,
			})
		}
		return err
	}
}
