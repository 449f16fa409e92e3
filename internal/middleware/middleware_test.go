package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	healthsvc "talentgate-backend/internal/application/health"
	"talentgate-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	assert.Equal(t, "error", out["status"])
	return out["error"].(map[string]interface{})
}

func TestErrorHandler_DomainErrorKeepsCodeAndDetails(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/x", func(c *fiber.Ctx) error {
		return domain.ErrIncomplete.WithDetails(map[string]int{"answered": 3, "required": 6})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	e := decodeError(t, resp.Body)
	assert.Equal(t, "INCOMPLETE", e["code"])
	assert.Equal(t, float64(422), e["statusCode"])
	assert.Equal(t, float64(3), e["details"].(map[string]interface{})["answered"])
}

func TestErrorHandler_UnknownErrorIsGeneric(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/x", func(c *fiber.Ctx) error {
		return errors.New("pq: connection refused to 10.0.0.3")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	e := decodeError(t, resp.Body)
	assert.Equal(t, "Internal Server Error", e["message"])
	assert.NotContains(t, e["message"], "10.0.0.3")
}

func TestErrorHandler_FiberErrorPassesThrough(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTracing_KeepsValidIncomingID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	id := uuid.New().String()
	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Trace-Id", id)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, id, resp.Header.Get("X-Trace-Id"))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Trace-Id", "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	_, perr := uuid.Parse(resp.Header.Get("X-Trace-Id"))
	assert.NoError(t, perr)
}

func TestHealthMarker_CountsAndLogsServerErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Tracing(), RouteLogger(), HealthMarker(rdb))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/gone", func(c *fiber.Ctx) error { return domain.ErrGone })

	for _, p := range []string{"/ok", "/boom", "/gone"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}

	ctx := context.Background()
	total, _ := rdb.Get(ctx, healthsvc.KeyReqTotal).Int()
	failed, _ := rdb.Get(ctx, healthsvc.KeyReqErrors).Int()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, failed)

	entries, err := healthsvc.RecentErrors(ctx, rdb, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/boom", entries[0].Path)
	assert.Equal(t, 500, entries[0].Status)
	assert.NotEmpty(t, entries[0].TraceID)
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedSuffix: ".talentgate.io", DevPassword: "letmein"}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://app.talentgate.io")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.talentgate.io", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("dev-password", "letmein")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCORS_MultipleSuffixesAndPreflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedSuffix: ".talentgate.io, .talentgate.dev"}))
	app.Post("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "https://staging.talentgate.dev")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Service-Key")

	req = httptest.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("POST", "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireServiceKey(t *testing.T) {
	app := fiber.New()
	app.Use(RequireServiceKey("s3cret"))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Service-Key", "s3cret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	open := fiber.New()
	open.Use(RequireServiceKey(""))
	open.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })
	resp, err = open.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
