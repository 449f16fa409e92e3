package middleware

import (
	"strings"

	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig holds CORS configuration. AllowedSuffix may list several
// comma-separated host suffixes, e.g. ".talentgate.io,.talentgate.dev".
type CORSConfig struct {
	AllowedSuffix string
	DevPassword   string
}

const (
	corsAllowHeaders = "Content-Type, dev-password, X-Trace-Id, X-Service-Key"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// CORS admits browser origins that end in an allowed suffix, local dev
// origins on preflight, and anything presenting the dev password. Requests
// without an Origin header are not browser cross-origin calls and pass.
func CORS(cfg CORSConfig) fiber.Handler {
	suffixes := splitSuffixes(cfg.AllowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" {
			return c.Next()
		}
		allowed := originAllowed(strings.ToLower(origin), suffixes) ||
			(cfg.DevPassword != "" && c.Get("dev-password") == cfg.DevPassword)
		preflight := c.Method() == fiber.MethodOptions
		if !allowed && !(preflight && isLocalOrigin(origin)) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}

		c.Set("Access-Control-Allow-Origin", origin)
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Set("Vary", "Origin")
		if preflight {
			c.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Set("Access-Control-Allow-Methods", corsAllowMethods)
			c.Set("Access-Control-Max-Age", "600")
			return c.SendStatus(fiber.StatusNoContent)
		}
		c.Set("Access-Control-Expose-Headers", traceIDHeader)
		return c.Next()
	}
}

func splitSuffixes(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func originAllowed(origin string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(origin, s) {
			return true
		}
	}
	return false
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
}
