package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimedTestState holds the single live attempt id of a candidate's timed test.
// AttemptID is nulled under a row lock as soon as a submission starts.
type TimedTestState struct {
	CandidateID      uuid.UUID  `gorm:"column:candidate_id;type:uuid;primaryKey" json:"candidate_id"`
	AttemptID        *string    `gorm:"column:attempt_id" json:"-"`
	AttemptStartedAt *time.Time `gorm:"column:attempt_started_at" json:"attempt_started_at"`
	LastScore        *float64   `gorm:"column:last_score" json:"last_score"`
	LastSubmittedAt  *time.Time `gorm:"column:last_submitted_at" json:"last_submitted_at"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (TimedTestState) TableName() string {
	return "timed_test_states"
}
