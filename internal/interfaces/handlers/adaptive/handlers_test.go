package adaptive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	adpsvc "talentgate-backend/internal/application/adaptive"
	"talentgate-backend/internal/application/answers"
	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/application/scoring"
	"talentgate-backend/internal/config"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tiedClassifier struct{}

func (tiedClassifier) Classify(ctx context.Context, identity map[string]string) (*adpsvc.Classification, error) {
	return &adpsvc.Classification{
		CommandClass:       domain.ClassTeamLead,
		Confidence:         0.52,
		AlternativeClasses: []adpsvc.ClassScore{{Class: domain.ClassFieldOperator, Confidence: 0.48}},
	}, nil
}

func setupAdaptiveTest(t *testing.T) *fiber.App {
	db := testutil.NewDB(t)
	h := &Handlers{Service: &adpsvc.Service{
		DB:         db,
		Answers:    &answers.Service{DB: db, Scorer: scoring.Heuristic{}},
		Questions:  questionsets.NewCatalog(),
		Classifier: tiedClassifier{},
		Scorer:     adpsvc.HeuristicCapabilityScorer{},
		Workflow:   config.DefaultAdaptiveWorkflow(),
	}}
	app := fiber.New()
	app.Post("/phase1/start", h.StartPhase1)
	app.Post("/phase1/:id/answers", h.SubmitPhase1Answers)
	app.Post("/phase1/:id/complete", h.CompletePhase1)
	app.Post("/phase2/start", h.StartPhase2)
	app.Post("/phase2/:id/answers", h.SubmitPhase2Answer)
	app.Post("/phase2/:id/complete", h.CompletePhase2)
	return app
}

func post(t *testing.T, app *fiber.App, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorOf(out map[string]interface{}) map[string]interface{} {
	e, _ := out["error"].(map[string]interface{})
	return e
}

func identity(from, to int) []map[string]interface{} {
	out := []map[string]interface{}{}
	for i := from; i <= to; i++ {
		out = append(out, map[string]interface{}{
			"slot":       i,
			"questionId": fmt.Sprintf("idn-%02d", i),
			"text":       "Shift supervisor with nine years in warehouse logistics",
		})
	}
	return out
}

func TestAdaptive_FullFlowWithReview(t *testing.T) {
	app := setupAdaptiveTest(t)

	status, out := post(t, app, "/phase1/start", map[string]interface{}{"candidateId": uuid.New().String(), "language": "en"})
	require.Equal(t, 201, status)
	data := out["data"].(map[string]interface{})
	p1 := data["interview"].(map[string]interface{})["id"].(string)
	assert.Len(t, data["questions"], 12)

	status, _ = post(t, app, "/phase1/"+p1+"/answers", map[string]interface{}{"answers": identity(1, 10)})
	require.Equal(t, 200, status)

	status, out = post(t, app, "/phase1/"+p1+"/complete", nil)
	assert.Equal(t, 422, status)
	assert.Equal(t, "INCOMPLETE_IDENTITY", errorOf(out)["code"])
	missing := errorOf(out)["details"].(map[string]interface{})["missingFields"]
	assert.Equal(t, []interface{}{"languages", "career_goal"}, missing)

	status, out = post(t, app, "/phase2/start", map[string]string{"phase1InterviewId": p1})
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_REQUEST", errorOf(out)["code"])

	status, _ = post(t, app, "/phase1/"+p1+"/answers", map[string]interface{}{"answers": identity(11, 12)})
	require.Equal(t, 200, status)
	status, out = post(t, app, "/phase1/"+p1+"/complete", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, domain.ClassTeamLead, out["data"].(map[string]interface{})["commandClass"])

	status, out = post(t, app, "/phase2/start", map[string]string{"phase1InterviewId": p1})
	assert.Equal(t, 409, status)
	e := errorOf(out)
	assert.Equal(t, "NEEDS_REVIEW", e["code"])
	secondary := e["details"].(map[string]interface{})["secondaryClass"].(map[string]interface{})
	assert.Equal(t, domain.ClassFieldOperator, secondary["class"])

	status, out = post(t, app, "/phase2/start", map[string]string{"phase1InterviewId": p1, "resolution": "use_secondary"})
	require.Equal(t, 201, status)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, domain.ClassFieldOperator, data["commandClass"])
	p2 := data["interview"].(map[string]interface{})["id"].(string)
	scenarios := data["scenarios"].([]interface{})
	require.Len(t, scenarios, 8)

	status, out = post(t, app, "/phase2/"+p2+"/complete", nil)
	assert.Equal(t, 422, status)
	assert.Equal(t, "INCOMPLETE", errorOf(out)["code"])

	for slot := 1; slot <= len(scenarios); slot++ {
		status, _ = post(t, app, fmt.Sprintf("/phase2/%s/answers", p2), map[string]interface{}{
			"slot": slot,
			"text": "I would stop, check the instructions with my supervisor, then inform the team and document what changed.",
		})
		require.Equal(t, 200, status)
	}
	status, out = post(t, app, "/phase2/"+p2+"/complete", nil)
	require.Equal(t, 200, status)
	packet := out["data"].(map[string]interface{})["deploymentPacket"].(map[string]interface{})
	assert.Equal(t, domain.ClassFieldOperator, packet["commandClass"])
}

func TestAdaptive_BadInput(t *testing.T) {
	app := setupAdaptiveTest(t)

	status, _ := post(t, app, "/phase1/start", map[string]interface{}{"candidateId": "x"})
	assert.Equal(t, 400, status)

	status, _ = post(t, app, "/phase1/start", map[string]interface{}{"candidateId": uuid.New().String(), "language": "English"})
	assert.Equal(t, 400, status)

	status, _ = post(t, app, "/phase1/not-a-uuid/complete", nil)
	assert.Equal(t, 400, status)

	status, out := post(t, app, "/phase2/start", map[string]string{"phase1InterviewId": uuid.New().String(), "resolution": "maybe"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_REQUEST", errorOf(out)["code"])

	status, out = post(t, app, "/phase1/"+uuid.New().String()+"/complete", nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", errorOf(out)["code"])
}
