package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptAnswer is one entry of an attempt's ordered answer list.
type AttemptAnswer struct {
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Attempt is one run of a multi-try question set. AttemptNo grows per
// candidate and question set; only one attempt may be open at a time.
type Attempt struct {
	ID                uuid.UUID                          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID       uuid.UUID                          `gorm:"column:candidate_id;type:uuid;not null;uniqueIndex:idx_attempts_no" json:"candidate_id"`
	QuestionSetID     string                             `gorm:"column:question_set_id;not null;uniqueIndex:idx_attempts_no" json:"question_set_id"`
	AttemptNo         int                                `gorm:"column:attempt_no;not null;uniqueIndex:idx_attempts_no" json:"attempt_no"`
	StartedAt         time.Time                          `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt       *time.Time                         `gorm:"column:completed_at" json:"completed_at"`
	Answers           datatypes.JSONType[[]AttemptAnswer] `gorm:"column:answers" json:"answers"`
	SelectionSnapshot datatypes.JSON                     `gorm:"column:selection_snapshot" json:"selection_snapshot"`
	OpenKey           *string                            `gorm:"column:open_key;uniqueIndex" json:"-"`
	CreatedAt         time.Time                          `json:"createdAt"`
	UpdatedAt         time.Time                          `json:"updatedAt"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func AttemptOpenKey(candidateID uuid.UUID, questionSetID string) *string {
	k := fmt.Sprintf("%s:%s", candidateID, questionSetID)
	return &k
}
