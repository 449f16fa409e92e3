package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentgate-backend/internal/application/answers"
	"talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/voicetoken"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultMinDuration = 2 * time.Second
	DefaultMaxDuration = 120 * time.Second
	defaultStreamTTL   = 10 * time.Minute
)

// FailedMessage is the only failure text a candidate sees; provider detail
// goes to the log.
const FailedMessage = "Transcription failed, please record again"

type Service struct {
	DB          *gorm.DB
	Invitations *invitations.Service
	Answers     *answers.Service
	Blobs       BlobStore
	Probe       DurationProbe
	STT         Transcriber
	Queue       Enqueuer

	MinDuration  time.Duration
	MaxDuration  time.Duration
	StreamSecret []byte
	StreamTTL    time.Duration
	Now          func() time.Time
}

type UploadInput struct {
	InvitationToken string
	Slot            int
	QuestionID      string
	MIMEType        string
	Data            []byte
}

type UploadResult struct {
	TranscriptionID uuid.UUID `json:"transcriptionId"`
	Status          string    `json:"status"`
}

type StatusResult struct {
	TranscriptionID uuid.UUID `json:"transcriptionId"`
	Status          string    `json:"status"`
	TranscriptText  *string   `json:"transcriptText,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
	Error           *string   `json:"error,omitempty"`
}

type StreamToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) bounds() (time.Duration, time.Duration) {
	lo, hi := s.MinDuration, s.MaxDuration
	if lo <= 0 {
		lo = DefaultMinDuration
	}
	if hi <= 0 {
		hi = DefaultMaxDuration
	}
	return lo, hi
}

// startedInterview resolves the token to its live interview.
func (s *Service) startedInterview(ctx context.Context, token string) (*domain.Invitation, *domain.Interview, error) {
	inv, err := s.Invitations.AccessStarted(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	iv, err := s.Answers.GetInterview(ctx, *inv.InterviewID)
	if err != nil {
		return nil, nil, err
	}
	if iv.IsCompleted() {
		return nil, nil, domain.ErrConflict
	}
	return inv, iv, nil
}

// Upload validates a recorded answer, stores it and queues transcription.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	_, iv, err := s.startedInterview(ctx, in.InvitationToken)
	if err != nil {
		return nil, err
	}
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	if in.QuestionID == "" || len(in.Data) == 0 {
		return nil, domain.ErrInvalidRequest.WithMessage("questionId and an audio file are required")
	}
	if in.Slot < 1 || in.Slot > iv.RequiredCount {
		return nil, domain.ErrBadRequest.WithMessage(fmt.Sprintf("slot must be between 1 and %d", iv.RequiredCount))
	}

	mimeType := NormalizeMIME(in.MIMEType)
	ext, ok := AudioExtension(mimeType)
	if !ok {
		return nil, domain.ErrInvalidAudioType.WithDetails(map[string]string{"mimeType": mimeType})
	}

	if err := s.checkSlotFree(s.DB.WithContext(ctx), iv.ID, in.QuestionID, in.Slot); err != nil {
		return nil, err
	}

	durationMs, err := s.checkDuration(ctx, in.Data, mimeType)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Data)
	digest := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("voice/%s.%s", digest, ext)
	if err := s.Blobs.Put(ctx, key, in.Data, mimeType); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}

	row := &domain.VoiceTranscription{
		InterviewID: iv.ID,
		Slot:        in.Slot,
		QuestionID:  in.QuestionID,
		AudioPath:   key,
		AudioSHA256: digest,
		MIMEType:    mimeType,
		DurationMs:  durationMs,
		Status:      domain.TranscriptionPending,
	}
	var replaced []domain.VoiceTranscription
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkSlotFree(tx, iv.ID, in.QuestionID, in.Slot); err != nil {
			return err
		}
		if err := tx.Where("interview_id = ? AND slot = ?", iv.ID, in.Slot).Find(&replaced).Error; err != nil {
			return err
		}
		if len(replaced) > 0 {
			if err := tx.Where("interview_id = ? AND slot = ? AND status <> ?", iv.ID, in.Slot, domain.TranscriptionDone).
				Delete(&domain.VoiceTranscription{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, err
	}

	s.purgeBlobs(ctx, replaced, key)

	if err := s.Queue.Enqueue(ctx, row.ID.String()); err != nil {
		err = fmt.Errorf("enqueue transcription: %w", err)
		// no job will pick the row up; pollers must see it fail
		if ferr := s.fail(ctx, row, err); ferr != nil {
			log.Error().Err(ferr).Str("transcription_id", row.ID.String()).Msg("mark unqueued transcription failed")
		}
		return nil, err
	}
	log.Info().
		Str("transcription_id", row.ID.String()).
		Str("interview_id", iv.ID.String()).
		Int("slot", in.Slot).
		Int("replaced", len(replaced)).
		Msg("voice answer queued")
	return &UploadResult{TranscriptionID: row.ID, Status: "pending"}, nil
}

// checkSlotFree rejects a question bound to another slot, by typed answer or
// by upload, and a slot whose transcription is already DONE.
func (s *Service) checkSlotFree(db *gorm.DB, interviewID uuid.UUID, questionID string, slot int) error {
	if err := answers.CheckQuestionSlot(db, interviewID, questionID, slot); err != nil {
		return err
	}
	var n int64
	if err := db.Model(&domain.VoiceTranscription{}).
		Where("interview_id = ? AND question_id = ? AND slot <> ?", interviewID, questionID, slot).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrDuplicateQuestion
	}
	if err := db.Model(&domain.VoiceTranscription{}).
		Where("interview_id = ? AND slot = ? AND status = ?", interviewID, slot, domain.TranscriptionDone).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrAlreadyTranscribed
	}
	return nil
}

// checkDuration enforces the duration window. A probe that cannot measure the
// file does not block the upload.
func (s *Service) checkDuration(ctx context.Context, data []byte, mimeType string) (*int64, error) {
	if s.Probe == nil {
		return nil, nil
	}
	d, err := s.Probe.Probe(ctx, data, mimeType)
	if err != nil {
		log.Warn().Err(err).Str("mime", mimeType).Msg("audio duration probe failed, accepting upload")
		return nil, nil
	}
	lo, hi := s.bounds()
	ms := d.Milliseconds()
	switch {
	case d < lo:
		return nil, domain.ErrAudioTooShort.WithDetails(map[string]int64{"durationMs": ms, "minMs": lo.Milliseconds()})
	case d > hi:
		return nil, domain.ErrAudioTooLong.WithDetails(map[string]int64{"durationMs": ms, "maxMs": hi.Milliseconds()})
	}
	return &ms, nil
}

// purgeBlobs deletes audio of replaced rows once nothing references it.
func (s *Service) purgeBlobs(ctx context.Context, replaced []domain.VoiceTranscription, keep string) {
	for _, old := range replaced {
		if old.Status == domain.TranscriptionDone || old.AudioPath == keep {
			continue
		}
		var refs int64
		if err := s.DB.WithContext(ctx).Model(&domain.VoiceTranscription{}).
			Where("audio_path = ?", old.AudioPath).Count(&refs).Error; err != nil || refs > 0 {
			continue
		}
		if err := s.Blobs.Delete(ctx, old.AudioPath); err != nil {
			log.Warn().Err(err).Str("path", old.AudioPath).Msg("purge replaced audio failed")
		}
	}
}

// Transcribe processes one queued transcription. Safe to run more than once
// for the same id.
func (s *Service) Transcribe(ctx context.Context, transcriptionID uuid.UUID) error {
	var row domain.VoiceTranscription
	err := s.DB.WithContext(ctx).First(&row, "id = ?", transcriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info().Str("transcription_id", transcriptionID.String()).Msg("transcription superseded, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if row.Status == domain.TranscriptionDone {
		return nil
	}

	iv, err := s.Answers.GetInterview(ctx, row.InterviewID)
	if err != nil {
		return err
	}

	audio, err := s.Blobs.Get(ctx, row.AudioPath)
	if err != nil {
		return s.fail(ctx, &row, fmt.Errorf("load audio: %w", err))
	}
	if s.STT == nil {
		return s.fail(ctx, &row, errors.New("no speech-to-text provider configured"))
	}
	tr, err := s.STT.Transcribe(ctx, audio, row.MIMEType, iv.Language)
	if err != nil {
		return s.fail(ctx, &row, err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return s.fail(ctx, &row, errors.New("empty transcript"))
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.VoiceTranscription{}).
			Where("id = ? AND status <> ?", row.ID, domain.TranscriptionDone).
			Updates(map[string]interface{}{
				"status":          domain.TranscriptionDone,
				"transcript_text": text,
				"confidence":      tr.Confidence,
				"error_message":   nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var current domain.Interview
		if err := tx.First(&current, "id = ?", row.InterviewID).Error; err != nil {
			return err
		}
		if current.IsCompleted() {
			return nil
		}
		_, err := s.Answers.UpsertTx(ctx, tx, &current, answers.AnswerInput{Slot: row.Slot, QuestionID: row.QuestionID, Text: text})
		if de, ok := domain.AsError(err); ok {
			log.Warn().Str("transcription_id", row.ID.String()).Str("code", de.Code).Msg("transcript not copied to answer")
			return nil
		}
		if err == nil {
			log.Info().Str("transcription_id", row.ID.String()).Int("slot", row.Slot).Msg("voice answer transcribed")
		}
		return err
	})
}

func (s *Service) fail(ctx context.Context, row *domain.VoiceTranscription, cause error) error {
	log.Error().Err(cause).Str("transcription_id", row.ID.String()).Msg("transcription failed")
	return s.DB.WithContext(ctx).Model(&domain.VoiceTranscription{}).
		Where("id = ? AND status <> ?", row.ID, domain.TranscriptionDone).
		Updates(map[string]interface{}{"status": domain.TranscriptionFailed, "error_message": FailedMessage}).Error
}

// Status reports the latest transcription of questionID for the invitation's
// interview.
func (s *Service) Status(ctx context.Context, token, questionID string) (*StatusResult, error) {
	inv, err := s.Invitations.Access(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.InterviewID == nil {
		return nil, domain.ErrBadRequest.WithMessage("The assessment has not been started")
	}
	var row domain.VoiceTranscription
	err = s.DB.WithContext(ctx).
		Where("interview_id = ? AND question_id = ?", *inv.InterviewID, strings.TrimSpace(questionID)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("No voice answer for this question")
	}
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		TranscriptionID: row.ID,
		Status:          strings.ToLower(row.Status),
		TranscriptText:  row.TranscriptText,
		Confidence:      row.Confidence,
		Error:           row.ErrorMessage,
	}, nil
}

// IssueStreamToken signs a voice gateway token for one slot of the live
// interview.
func (s *Service) IssueStreamToken(ctx context.Context, token string, slot int, questionID string) (*StreamToken, error) {
	inv, iv, err := s.startedInterview(ctx, token)
	if err != nil {
		return nil, err
	}
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("questionId is required")
	}
	if slot < 1 || slot > iv.RequiredCount {
		return nil, domain.ErrBadRequest.WithMessage(fmt.Sprintf("slot must be between 1 and %d", iv.RequiredCount))
	}
	if err := s.checkSlotFree(s.DB.WithContext(ctx), iv.ID, questionID, slot); err != nil {
		return nil, err
	}
	ttl := s.StreamTTL
	if ttl <= 0 {
		ttl = defaultStreamTTL
	}
	now := s.now()
	signed, err := voicetoken.Sign(s.StreamSecret, voicetoken.Claims{
		InvitationID: inv.ID,
		InterviewID:  iv.ID,
		Slot:         slot,
		QuestionID:   questionID,
	}, ttl, now)
	if err != nil {
		return nil, err
	}
	return &StreamToken{Token: signed, ExpiresAt: now.Add(ttl)}, nil
}

// VerifyStreamToken checks a gateway token. Any failure is Forbidden.
func (s *Service) VerifyStreamToken(token string) (*voicetoken.Claims, error) {
	c, err := voicetoken.Verify(s.StreamSecret, token, s.now())
	if err != nil {
		log.Debug().Err(err).Msg("stream token rejected")
		return nil, domain.ErrForbidden
	}
	return c, nil
}
