package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	InterviewDraft      = "DRAFT"
	InterviewInProgress = "IN_PROGRESS"
	InterviewCompleted  = "COMPLETED"
)

// Interview kinds. At most one non-terminal interview per candidate and kind/phase.
const (
	KindStandard = "standard"
	KindAdaptive = "adaptive"
)

type Interview struct {
	ID                     uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID            uuid.UUID      `gorm:"column:candidate_id;type:uuid;not null;index" json:"candidate_id"`
	InvitationID           *uuid.UUID     `gorm:"column:invitation_id;type:uuid;index" json:"invitation_id"`
	Kind                   string         `gorm:"column:kind;not null;default:'standard'" json:"kind"`
	Phase                  *int           `gorm:"column:phase" json:"phase"`
	Status                 string         `gorm:"column:status;not null;default:'DRAFT'" json:"status"`
	PositionCode           string         `gorm:"column:position_code" json:"position_code"`
	Language               string         `gorm:"column:language;not null;default:'en'" json:"language"`
	QuestionSetID          string         `gorm:"column:question_set_id" json:"question_set_id"`
	RequiredCount          int            `gorm:"column:required_count;not null;default:0" json:"required_count"`
	Meta                   datatypes.JSON `gorm:"column:meta" json:"meta"`
	CommandClassDetected   *string        `gorm:"column:command_class_detected" json:"command_class_detected"`
	CommandClassConfidence *float64       `gorm:"column:command_class_confidence" json:"command_class_confidence"`
	Classification         datatypes.JSON `gorm:"column:classification" json:"classification,omitempty"`
	CapabilityProfile      datatypes.JSON `gorm:"column:capability_profile" json:"capability_profile,omitempty"`
	ParentInterviewID      *uuid.UUID     `gorm:"column:parent_interview_id;type:uuid;index" json:"parent_interview_id"`
	OpenKey                *string        `gorm:"column:open_key;uniqueIndex" json:"-"`
	CompletedAt            *time.Time     `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

func (Interview) TableName() string {
	return "interviews"
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InterviewOpenKey is the value held in open_key while an interview is not yet
// completed; the unique index on it keeps one open interview per candidate,
// kind and phase.
func InterviewOpenKey(candidateID uuid.UUID, kind string, phase *int) *string {
	p := 0
	if phase != nil {
		p = *phase
	}
	k := fmt.Sprintf("%s:%s:%d", candidateID, kind, p)
	return &k
}

func (i *Interview) IsCompleted() bool {
	return i.Status == InterviewCompleted
}

// PhaseValue returns the phase or 0 when the interview is not phased.
func (i *Interview) PhaseValue() int {
	if i.Phase == nil {
		return 0
	}
	return *i.Phase
}

func IntPtr(v int) *int { return &v }
