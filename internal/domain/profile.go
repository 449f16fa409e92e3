package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the scored output of a completed interview. A final profile is
// never overwritten.
type Profile struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID uuid.UUID      `gorm:"column:candidate_id;type:uuid;not null;index" json:"candidate_id"`
	InterviewID uuid.UUID      `gorm:"column:interview_id;type:uuid;not null;uniqueIndex" json:"interview_id"`
	IsFinal     bool           `gorm:"column:is_final;not null;default:false" json:"is_final"`
	Scores      datatypes.JSON `gorm:"column:scores" json:"scores"`
	Summary     string         `gorm:"column:summary" json:"summary"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
