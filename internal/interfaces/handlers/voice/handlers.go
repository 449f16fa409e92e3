package voice

import (
	"fmt"
	"io"
	"strconv"

	"talentgate-backend/internal/application/voice"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const defaultMaxUploadBytes = 25 << 20

type Handlers struct {
	Service        *voice.Service
	MaxUploadBytes int
}

type streamTokenRequest struct {
	InvitationToken string `json:"invitationToken"`
	Slot            int    `json:"slot"`
	QuestionID      string `json:"questionId"`
}

func (h *Handlers) maxBytes() int {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// Upload POST /api/v1/voice/upload: multipart invitationToken, slot,
// questionId and file. Answers 202; transcription runs on a worker.
func (h *Handlers) Upload(c *fiber.Ctx) error {
	slot, err := strconv.Atoi(c.FormValue("slot"))
	if err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("slot must be a number"))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("file is required"))
	}
	if fh.Size > int64(h.maxBytes()) {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("file exceeds %d bytes", h.maxBytes())))
	}
	f, err := fh.Open()
	if err != nil {
		return response.FromError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(h.maxBytes())+1))
	if err != nil {
		return response.FromError(c, err)
	}
	if len(data) > h.maxBytes() {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("file exceeds %d bytes", h.maxBytes())))
	}

	mimeType := c.FormValue("mimeType")
	if mimeType == "" {
		mimeType = fh.Header.Get("Content-Type")
	}

	res, err := h.Service.Upload(c.Context(), voice.UploadInput{
		InvitationToken: c.FormValue("invitationToken"),
		Slot:            slot,
		QuestionID:      c.FormValue("questionId"),
		MIMEType:        mimeType,
		Data:            data,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	log.Info().Str("transcription_id", res.TranscriptionID.String()).Int("slot", slot).Int("bytes", len(data)).Msg("voice answer accepted")
	return response.Accepted(c, "Voice answer accepted", res)
}

// Status GET /api/v1/voice/status?token=&questionId=
func (h *Handlers) Status(c *fiber.Ctx) error {
	res, err := h.Service.Status(c.Context(), c.Query("token"), c.Query("questionId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Voice answer status", res, nil)
}

// StreamToken POST /api/v1/voice/stream-token
func (h *Handlers) StreamToken(c *fiber.Ctx) error {
	var req streamTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	res, err := h.Service.IssueStreamToken(c.Context(), req.InvitationToken, req.Slot, req.QuestionID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Stream token issued", res, nil)
}

// VerifyStreamToken POST /api/v1/voice/stream-token/verify: called by the
// voice gateway before it accepts a stream.
func (h *Handlers) VerifyStreamToken(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrInvalidRequest.WithMessage("Invalid request body"))
	}
	claims, err := h.Service.VerifyStreamToken(req.Token)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Stream token valid", claims, nil)
}
