package adaptive

import (
	"encoding/json"

	adpsvc "talentgate-backend/internal/application/adaptive"
	"talentgate-backend/internal/application/answers"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"
	"talentgate-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Handlers struct {
	Service *adpsvc.Service
}

type phase1StartRequest struct {
	CandidateID string          `json:"candidateId"`
	Language    string          `json:"language"`
	Meta        json.RawMessage `json:"meta"`
}

type batchRequest struct {
	Answers []answers.AnswerInput `json:"answers"`
}

type phase2StartRequest struct {
	Phase1InterviewID string `json:"phase1InterviewId"`
	Resolution        string `json:"resolution"`
}

type phase2AnswerRequest struct {
	Slot int    `json:"slot"`
	Text string `json:"text"`
}

func invalid(msg string) error {
	return domain.ErrInvalidRequest.WithMessage(msg)
}

func interviewID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return uuid.Nil, invalid("interview id must be a uuid")
	}
	return id, nil
}

// StartPhase1 POST /api/v1/adaptive/phase1/start
func (h *Handlers) StartPhase1(c *fiber.Ctx) error {
	var req phase1StartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, invalid("Invalid request body"))
	}
	candidateID, ok := validation.ParseID(req.CandidateID)
	if !ok {
		return response.FromError(c, invalid("candidateId must be a uuid"))
	}
	if req.Language != "" && !validation.IsValidLocale(req.Language) {
		return response.FromError(c, invalid("language must be a locale such as en or de-AT"))
	}
	var meta datatypes.JSON
	if len(req.Meta) > 0 && string(req.Meta) != "null" {
		meta = datatypes.JSON(req.Meta)
	}
	iv, err := h.Service.StartPhase1(c.Context(), candidateID, req.Language, meta)
	if err != nil {
		return response.FromError(c, err)
	}
	qs, err := h.Service.Questions.ByID(c.Context(), iv.QuestionSetID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Phase 1 started", fiber.Map{"interview": iv, "questions": qs.Questions}, nil)
}

// SubmitPhase1Answers POST /api/v1/adaptive/phase1/:id/answers
func (h *Handlers) SubmitPhase1Answers(c *fiber.Ctx) error {
	id, err := interviewID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, invalid("Invalid request body"))
	}
	if len(req.Answers) == 0 {
		return response.FromError(c, invalid("answers must not be empty"))
	}
	saved, err := h.Service.SubmitPhase1Answers(c.Context(), id, req.Answers)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Answers saved", saved, fiber.Map{"count": len(saved)})
}

// CompletePhase1 POST /api/v1/adaptive/phase1/:id/complete
func (h *Handlers) CompletePhase1(c *fiber.Ctx) error {
	id, err := interviewID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	cls, err := h.Service.CompletePhase1(c.Context(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Phase 1 classified", cls, nil)
}

// StartPhase2 POST /api/v1/adaptive/phase2/start: 409 NEEDS_REVIEW carries
// the primary and secondary class in error.details.
func (h *Handlers) StartPhase2(c *fiber.Ctx) error {
	var req phase2StartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, invalid("Invalid request body"))
	}
	phase1ID, ok := validation.ParseID(req.Phase1InterviewID)
	if !ok {
		return response.FromError(c, invalid("phase1InterviewId must be a uuid"))
	}
	choice, err := adpsvc.ParseResolution(req.Resolution)
	if err != nil {
		return response.FromError(c, err)
	}
	out, err := h.Service.StartPhase2(c.Context(), phase1ID, choice)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Phase 2 started", out, nil)
}

// SubmitPhase2Answer POST /api/v1/adaptive/phase2/:id/answers
func (h *Handlers) SubmitPhase2Answer(c *fiber.Ctx) error {
	id, err := interviewID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req phase2AnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, invalid("Invalid request body"))
	}
	saved, err := h.Service.SubmitPhase2Answer(c.Context(), id, req.Slot, req.Text)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Answer saved", saved, nil)
}

// CompletePhase2 POST /api/v1/adaptive/phase2/:id/complete
func (h *Handlers) CompletePhase2(c *fiber.Ctx) error {
	id, err := interviewID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	res, err := h.Service.CompletePhase2(c.Context(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Phase 2 completed", res, nil)
}
