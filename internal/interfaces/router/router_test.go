package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"net/url"
	"testing"

	"talentgate-backend/internal/app"
	healthsvc "talentgate-backend/internal/application/health"
	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/config"
	"talentgate-backend/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouterTest(t *testing.T) (*fiber.App, *app.Container) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{
		DatabaseURL:       ":memory:",
		RedisURL:          "redis://" + mr.Addr(),
		HealthAdminKey:    "admin",
		ServiceAPIKey:     "svc",
		InvitationHashKey: "hash-key",
		VoiceTokenSecret:  "voice-secret",
		StorageBackend:    "local",
		LocalStorageDir:   t.TempDir(),
		QueueBackend:      "memory",
		WorkerCount:       1,
		STTProvider:       "gemini",
		Workflows:         map[string]config.Workflow{"adaptive": config.DefaultAdaptiveWorkflow()},
	}
	c, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, database.AutoMigrate(c.DB))
	return CreateApp(c), c
}

func call(t *testing.T, a *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.Test(req, -1)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthJSON_AllDependenciesUp(t *testing.T) {
	a, _ := setupRouterTest(t)

	status, out := call(t, a, "GET", "/health/json", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(0), out["queueDepth"])
}

func TestStandardInterviewFlow(t *testing.T) {
	a, c := setupRouterTest(t)
	token, _, err := c.Invitations.Issue(context.Background(), invsvc.IssueInput{CandidateID: uuid.New()})
	require.NoError(t, err)

	status, out := call(t, a, "POST", "/api/v1/invitations/open", map[string]string{"token": token}, nil)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, false, out["data"].(map[string]interface{})["resumed"])

	status, out = call(t, a, "GET", "/api/v1/interviews/questions?token="+url.QueryEscape(token), nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	questions := out["data"].(map[string]interface{})["questions"].([]interface{})
	require.Len(t, questions, 6)

	status, out = call(t, a, "POST", "/api/v1/interviews/complete", map[string]string{"token": token}, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "INCOMPLETE", out["error"].(map[string]interface{})["code"])

	batch := make([]map[string]interface{}, 0, len(questions))
	for i := range questions {
		batch = append(batch, map[string]interface{}{
			"slot":       i + 1,
			"questionId": fmt.Sprintf("std-%02d", i+1),
			"text":       "I handled scheduling for a team of twelve and cut overtime by a third.",
		})
	}
	status, _ = call(t, a, "POST", "/api/v1/interviews/answers", map[string]interface{}{"token": token, "answers": batch}, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, out = call(t, a, "POST", "/api/v1/interviews/complete", map[string]string{"token": token}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Assessment completed", out["message"])

	status, out = call(t, a, "POST", "/api/v1/invitations/check", map[string]string{"token": token}, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "COMPLETED", out["data"].(map[string]interface{})["status"])

	status, _ = call(t, a, "POST", "/api/v1/invitations/open", map[string]string{"token": token}, nil)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestServiceKeyGuardsCandidateRoutes(t *testing.T) {
	a, _ := setupRouterTest(t)
	body := map[string]string{"candidateId": uuid.NewString()}

	status, _ := call(t, a, "POST", "/api/v1/timed-test/start", body, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out := call(t, a, "POST", "/api/v1/timed-test/start", body, map[string]string{"X-Service-Key": "svc"})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.NotEmpty(t, out["data"].(map[string]interface{})["attemptId"])
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	a, _ := setupRouterTest(t)

	status, out := call(t, a, "GET", "/api/v1/nope", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "error", out["status"])
}

func TestServerErrorsReachHealthLog(t *testing.T) {
	a, c := setupRouterTest(t)
	sqlDB, err := c.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	status, _ := call(t, a, "POST", "/api/v1/invitations/check", map[string]string{"token": "aaaaaaaaaaaaaaaaaaaaaaaa"}, nil)
	assert.Equal(t, fiber.StatusInternalServerError, status)

	entries, err := healthsvc.RecentErrors(context.Background(), c.Redis, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/invitations/check", entries[0].Path)

	status, _ = call(t, a, "GET", "/health/json", nil, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}
