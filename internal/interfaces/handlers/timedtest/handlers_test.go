package timedtest

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"talentgate-backend/internal/application/scoring"
	ttsvc "talentgate-backend/internal/application/timedtest"
	"talentgate-backend/internal/pkg/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTimedTest(t *testing.T) *fiber.App {
	db := testutil.NewDB(t)
	h := &Handlers{Service: &ttsvc.Service{DB: db, Scorer: scoring.Heuristic{}}}
	app := fiber.New()
	app.Post("/start", h.Start)
	app.Post("/submit", h.Submit)
	app.Get("/status/:candidateId", h.Status)
	return app
}

func call(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestTimedTest_SubmitIsSingleUse(t *testing.T) {
	app := setupTimedTest(t)
	candidate := uuid.New().String()

	status, out := call(t, app, "POST", "/start", map[string]string{"candidateId": candidate})
	require.Equal(t, 201, status)
	attemptID := out["data"].(map[string]interface{})["attemptId"].(string)

	status, out = call(t, app, "GET", "/status/"+candidate, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, true, out["data"].(map[string]interface{})["active"])

	body := map[string]interface{}{
		"candidateId": candidate,
		"attemptId":   attemptID,
		"answers":     []map[string]interface{}{{"slot": 1, "question_id": "t-1", "text": "Twelve boxes per pallet."}},
	}
	status, out = call(t, app, "POST", "/submit", body)
	assert.Equal(t, 200, status)
	assert.Contains(t, out["data"], "score")

	status, out = call(t, app, "POST", "/submit", body)
	assert.Equal(t, 409, status)
	e := out["error"].(map[string]interface{})
	assert.Equal(t, "INVALID_OR_EXPIRED_ATTEMPT", e["code"])
	assert.Equal(t, "This test session is no longer valid, please restart the test", e["message"])
}

func TestTimedTest_BadCandidateID(t *testing.T) {
	app := setupTimedTest(t)

	status, _ := call(t, app, "POST", "/start", map[string]string{"candidateId": "nope"})
	assert.Equal(t, 400, status)

	status, _ = call(t, app, "GET", "/status/nope", nil)
	assert.Equal(t, 400, status)
}
