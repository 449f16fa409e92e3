package attempts

import (
	"encoding/json"

	attsvc "talentgate-backend/internal/application/attempts"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"
	"talentgate-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type Handlers struct {
	Service *attsvc.Service
}

type startRequest struct {
	CandidateID   string          `json:"candidateId"`
	QuestionSetID string          `json:"questionSetId"`
	Snapshot      json.RawMessage `json:"snapshot"`
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// Start POST /api/v1/attempts/start: returns the open attempt or the next one.
func (h *Handlers) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	candidateID, ok := validation.ParseID(req.CandidateID)
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("candidateId must be a uuid"))
	}
	var snapshot datatypes.JSON
	if len(req.Snapshot) > 0 && string(req.Snapshot) != "null" {
		snapshot = datatypes.JSON(req.Snapshot)
	}
	a, err := h.Service.Start(c.Context(), candidateID, req.QuestionSetID, snapshot)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Attempt open", a, nil)
}

// RecordAnswer POST /api/v1/attempts/:id/answers
func (h *Handlers) RecordAnswer(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("attempt id must be a uuid"))
	}
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	a, err := h.Service.RecordAnswer(c.Context(), id, req.QuestionID, req.Text)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Answer recorded", a, nil)
}

// Finish POST /api/v1/attempts/:id/finish
func (h *Handlers) Finish(c *fiber.Ctx) error {
	id, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("attempt id must be a uuid"))
	}
	a, err := h.Service.Finish(c.Context(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Attempt finished", a, nil)
}

// List GET /api/v1/attempts?candidateId=&questionSetId=
func (h *Handlers) List(c *fiber.Ctx) error {
	candidateID, ok := validation.ParseID(c.Query("candidateId"))
	if !ok || c.Query("questionSetId") == "" {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("candidateId and questionSetId are required"))
	}
	list, err := h.Service.List(c.Context(), candidateID, c.Query("questionSetId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Attempts fetched successfully", list, fiber.Map{"count": len(list)})
}
