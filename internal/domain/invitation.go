package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	InvitationInvited   = "INVITED"
	InvitationStarted   = "STARTED"
	InvitationCompleted = "COMPLETED"
	InvitationExpired   = "EXPIRED"
)

// Invitation is a single-use, time-boxed credential for one assessment session.
// Only the keyed hash of the token is stored.
type Invitation struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID  uuid.UUID      `gorm:"column:candidate_id;type:uuid;not null;index" json:"candidate_id"`
	TokenHash    string         `gorm:"column:token_hash;not null;uniqueIndex" json:"-"`
	Status       string         `gorm:"column:status;not null;default:'INVITED'" json:"status"`
	Locale       string         `gorm:"column:locale;not null;default:'en'" json:"locale"`
	PositionCode string         `gorm:"column:position_code" json:"position_code"`
	Country      string         `gorm:"column:country" json:"country"`
	Workflow     string         `gorm:"column:workflow;not null;default:'standard'" json:"workflow"`
	ExpiresAt    time.Time      `gorm:"column:expires_at;not null" json:"expires_at"`
	AccessCount  int            `gorm:"column:access_count;not null;default:0" json:"access_count"`
	InterviewID  *uuid.UUID     `gorm:"column:interview_id;type:uuid" json:"interview_id"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at"`
	StartedIP    string         `gorm:"column:started_ip" json:"-"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at"`
	Meta         datatypes.JSON `gorm:"column:meta" json:"meta"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether no further transition is allowed.
func (i *Invitation) IsTerminal() bool {
	return i.Status == InvitationCompleted || i.Status == InvitationExpired
}

// IsExpiredAt reports whether the wall-clock deadline has passed at now.
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
