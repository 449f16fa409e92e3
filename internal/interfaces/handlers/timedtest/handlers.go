package timedtest

import (
	"talentgate-backend/internal/application/scoring"
	ttsvc "talentgate-backend/internal/application/timedtest"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"
	"talentgate-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *ttsvc.Service
}

type startRequest struct {
	CandidateID string `json:"candidateId"`
}

type submitRequest struct {
	CandidateID string               `json:"candidateId"`
	AttemptID   string               `json:"attemptId"`
	Answers     []scoring.AnswerView `json:"answers"`
}

// Start POST /api/v1/timed-test/start
func (h *Handlers) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	candidateID, ok := validation.ParseID(req.CandidateID)
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("candidateId must be a uuid"))
	}
	attemptID, err := h.Service.Start(c.Context(), candidateID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Timed test started", fiber.Map{"attemptId": attemptID}, nil)
}

// Submit POST /api/v1/timed-test/submit: the attempt id is good for one call.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	candidateID, ok := validation.ParseID(req.CandidateID)
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("candidateId must be a uuid"))
	}
	res, err := h.Service.Submit(c.Context(), candidateID, req.AttemptID, req.Answers)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Timed test submitted", res, nil)
}

// Status GET /api/v1/timed-test/status/:candidateId
func (h *Handlers) Status(c *fiber.Ctx) error {
	candidateID, ok := validation.ParseID(c.Params("candidateId"))
	if !ok {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("candidateId must be a uuid"))
	}
	res, err := h.Service.Status(c.Context(), candidateID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Timed test status", res, nil)
}
