package invitations

import (
	"time"

	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"
	"talentgate-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *invsvc.Service
}

type tokenRequest struct {
	Token string `json:"token"`
}

type openResponse struct {
	InvitationID uuid.UUID  `json:"invitationId"`
	InterviewID  *uuid.UUID `json:"interviewId"`
	Status       string     `json:"status"`
	Workflow     string     `json:"workflow"`
	Locale       string     `json:"locale"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Resumed      bool       `json:"resumed"`
	AccessCount  int        `json:"accessCount"`
}

func parseToken(c *fiber.Ctx) (string, error) {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return "", domain.ErrInvalidRequest.WithMessage("Invalid request body")
	}
	if !validation.IsValidToken(req.Token) {
		return "", domain.ErrForbidden
	}
	return req.Token, nil
}

// Open POST /api/v1/invitations/open: starts or resumes the assessment.
func (h *Handlers) Open(c *fiber.Ctx) error {
	token, err := parseToken(c)
	if err != nil {
		return response.FromError(c, err)
	}
	inv, iv, resumed, err := h.Service.Begin(c.Context(), token, c.IP())
	if err != nil {
		return response.FromError(c, err)
	}
	out := openResponse{
		InvitationID: inv.ID,
		InterviewID:  &iv.ID,
		Status:       inv.Status,
		Workflow:     inv.Workflow,
		Locale:       inv.Locale,
		ExpiresAt:    inv.ExpiresAt,
		Resumed:      resumed,
		AccessCount:  inv.AccessCount,
	}
	if resumed {
		return response.Success(c, "Assessment resumed", out, nil)
	}
	return response.SuccessCreated(c, "Assessment started", out, nil)
}

// Check POST /api/v1/invitations/check: reports state without starting.
func (h *Handlers) Check(c *fiber.Ctx) error {
	token, err := parseToken(c)
	if err != nil {
		return response.FromError(c, err)
	}
	inv, err := h.Service.Access(c.Context(), token)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Invitation is valid", fiber.Map{
		"status":      inv.Status,
		"workflow":    inv.Workflow,
		"locale":      inv.Locale,
		"expiresAt":   inv.ExpiresAt,
		"canResume":   h.Service.CanResume(inv),
		"interviewId": inv.InterviewID,
	}, nil)
}
