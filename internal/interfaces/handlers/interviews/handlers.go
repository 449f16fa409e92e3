package interviews

import (
	"time"

	"talentgate-backend/internal/application/adaptive"
	"talentgate-backend/internal/application/answers"
	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Handlers serve the candidate-facing interview flow. Every call is
// authorized by the invitation token.
type Handlers struct {
	Invitations  *invsvc.Service
	Answers      *answers.Service
	Adaptive     *adaptive.Service
	QuestionSets questionsets.Resolver
	Now          func() time.Time
}

type answerRequest struct {
	Token      string                `json:"token"`
	Slot       int                   `json:"slot"`
	QuestionID string                `json:"questionId"`
	Text       string                `json:"text"`
	Answers    []answers.AnswerInput `json:"answers"`
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Questions GET /api/v1/interviews/questions?token=
func (h *Handlers) Questions(c *fiber.Ctx) error {
	ctx := c.Context()
	inv, err := h.Invitations.AccessStarted(ctx, c.Query("token"))
	if err != nil {
		return response.FromError(c, err)
	}
	iv, err := h.Answers.GetInterview(ctx, *inv.InterviewID)
	if err != nil {
		return response.FromError(c, err)
	}
	qs, err := h.QuestionSets.ByID(ctx, iv.QuestionSetID)
	if err != nil {
		return response.FromError(c, err)
	}
	given, err := h.Answers.List(ctx, iv.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Questions fetched successfully", fiber.Map{
		"interviewId":   iv.ID,
		"questionSetId": qs.ID,
		"requiredCount": iv.RequiredCount,
		"questions":     qs.Questions,
		"answers":       given,
	}, nil)
}

// SubmitAnswers POST /api/v1/interviews/answers: one answer, or a batch in
// "answers" applied in order until the first failure.
func (h *Handlers) SubmitAnswers(c *fiber.Ctx) error {
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	ctx := c.Context()
	inv, err := h.Invitations.AccessStarted(ctx, req.Token)
	if err != nil {
		return response.FromError(c, err)
	}

	if len(req.Answers) > 0 {
		saved, err := h.Answers.SubmitBatch(ctx, *inv.InterviewID, req.Answers)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.Success(c, "Answers saved", saved, fiber.Map{"count": len(saved)})
	}
	saved, err := h.Answers.SubmitAnswer(ctx, *inv.InterviewID, answers.AnswerInput{
		Slot:       req.Slot,
		QuestionID: req.QuestionID,
		Text:       req.Text,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Answer saved", saved, nil)
}

// Complete POST /api/v1/interviews/complete: completes the interview and the
// invitation in one transaction. Scoring failures defer rather than block.
// Adaptive identity interviews are classified on completion instead.
func (h *Handlers) Complete(c *fiber.Ctx) error {
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	ctx := c.Context()
	inv, err := h.Invitations.Access(ctx, req.Token)
	if err != nil {
		return response.FromError(c, err)
	}
	if inv.InterviewID == nil {
		return response.FromError(c, domain.ErrBadRequest.WithMessage("The assessment has not been started"))
	}
	iv, err := h.Answers.GetInterview(ctx, *inv.InterviewID)
	if err != nil {
		return response.FromError(c, err)
	}
	if iv.Kind == domain.KindAdaptive {
		return h.completeIdentity(c, iv)
	}

	res, err := h.Answers.Complete(ctx, iv.ID, iv.RequiredCount, answers.CompleteOptions{
		Policy: answers.FailOpen,
		OnCompleted: func(tx *gorm.DB, done *domain.Interview) error {
			return invsvc.MarkCompletedTx(tx, inv.ID, h.now())
		},
	})
	if err != nil {
		return response.FromError(c, err)
	}
	if res.ScoringDeferred {
		log.Warn().Str("interview_id", iv.ID.String()).Msg("interview completed with scoring deferred")
	}
	msg := "Assessment completed"
	if res.ProfilePreserved {
		msg = "Assessment was already completed"
	}
	return response.Success(c, msg, res, nil)
}

func (h *Handlers) completeIdentity(c *fiber.Ctx, iv *domain.Interview) error {
	if h.Adaptive == nil || iv.PhaseValue() != 1 {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("This assessment cannot be completed here"))
	}
	cls, err := h.Adaptive.CompletePhase1(c.Context(), iv.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Identity phase completed", fiber.Map{
		"interviewId":    iv.ID,
		"classification": cls,
		"phase2Pending":  h.Adaptive.Workflow.Phase2Enabled,
	}, nil)
}
