package middleware

import (
	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global error handler. Domain errors keep their status
// and code; anything else becomes a logged, generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return response.FromError(c, err)
}

// flushError renders a chain error in place so outer middleware observe the
// final status code. It returns nil once the response is written.
func flushError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}
	if herr := c.App().ErrorHandler(c, err); herr != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return nil
}
