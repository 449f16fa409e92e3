package middleware

import (
	"crypto/subtle"

	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const serviceKeyHeader = "X-Service-Key"

// RequireServiceKey guards routes that are addressed by candidate id rather
// than by an invitation token. An empty key disables the check.
func RequireServiceKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		got := c.Get(serviceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
