package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TranscriptionPending = "PENDING"
	TranscriptionDone    = "DONE"
	TranscriptionFailed  = "FAILED"
)

// VoiceTranscription tracks one uploaded voice answer. DONE rows are immutable;
// PENDING and FAILED rows are replaced on re-upload.
type VoiceTranscription struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID    uuid.UUID `gorm:"column:interview_id;type:uuid;not null;uniqueIndex:idx_transcriptions_slot" json:"interview_id"`
	Slot           int       `gorm:"column:slot;not null;uniqueIndex:idx_transcriptions_slot" json:"slot"`
	QuestionID     string    `gorm:"column:question_id;not null;index" json:"question_id"`
	AudioPath      string    `gorm:"column:audio_path;not null" json:"audio_path"`
	AudioSHA256    string    `gorm:"column:audio_sha256;not null;index" json:"audio_sha256"`
	MIMEType       string    `gorm:"column:mime_type" json:"mime_type"`
	DurationMs     *int64    `gorm:"column:duration_ms" json:"duration_ms"`
	Status         string    `gorm:"column:status;not null;default:'PENDING'" json:"status"`
	TranscriptText *string   `gorm:"column:transcript_text" json:"transcript_text"`
	Confidence     *float64  `gorm:"column:confidence" json:"confidence"`
	ErrorMessage   *string   `gorm:"column:error_message" json:"error_message"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (VoiceTranscription) TableName() string {
	return "voice_transcriptions"
}

func (v *VoiceTranscription) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
