package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer is keyed by (interview_id, slot). A question id can be bound to one slot only.
type Answer struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID uuid.UUID `gorm:"column:interview_id;type:uuid;not null;uniqueIndex:idx_answers_slot;uniqueIndex:idx_answers_question" json:"interview_id"`
	Slot        int       `gorm:"column:slot;not null;uniqueIndex:idx_answers_slot" json:"slot"`
	QuestionID  string    `gorm:"column:question_id;not null;uniqueIndex:idx_answers_question" json:"question_id"`
	Text        string    `gorm:"column:text;not null" json:"text"`
	AnsweredAt  time.Time `gorm:"column:answered_at;not null" json:"answered_at"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Answer) TableName() string {
	return "answers"
}

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
