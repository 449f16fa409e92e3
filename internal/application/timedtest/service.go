package timedtest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"talentgate-backend/internal/application/scoring"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultTTL = 30 * time.Minute

// Service guards the single live attempt id of each candidate's timed test.
// An id is good for one submission within TTL of its start.
type Service struct {
	DB     *gorm.DB
	Scorer scoring.Scorer
	TTL    time.Duration
	Now    func() time.Time
}

type SubmitResult struct {
	Score       float64   `json:"score"`
	Summary     string    `json:"summary"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type StatusResult struct {
	Active           bool       `json:"active"`
	AttemptStartedAt *time.Time `json:"attemptStartedAt,omitempty"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	LastScore        *float64   `json:"lastScore,omitempty"`
	LastSubmittedAt  *time.Time `json:"lastSubmittedAt,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

// Start issues a fresh attempt id, replacing any unconsumed one.
func (s *Service) Start(ctx context.Context, candidateID uuid.UUID) (string, error) {
	if candidateID == uuid.Nil {
		return "", domain.ErrInvalidRequest.WithMessage("candidateId is required")
	}
	id := uuid.NewString()
	now := s.now()
	state := domain.TimedTestState{
		CandidateID:      candidateID,
		AttemptID:        &id,
		AttemptStartedAt: &now,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attempt_id", "attempt_started_at", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return "", fmt.Errorf("start timed test: %w", err)
	}
	log.Info().Str("candidate_id", candidateID.String()).Msg("timed test started")
	return id, nil
}

// Consume validates presented against the stored attempt id and clears it
// under a row lock. The first caller wins; every rejection looks the same to
// the client.
func (s *Service) Consume(ctx context.Context, candidateID uuid.UUID, presented string) error {
	var state domain.TimedTestState
	reason := ""
	err := database.WithRowLockWhere(ctx, s.DB, &state, func(tx *gorm.DB) error {
		switch {
		case state.AttemptID == nil:
			reason = "no live attempt"
		case subtle.ConstantTimeCompare([]byte(*state.AttemptID), []byte(presented)) != 1:
			reason = "attempt id mismatch"
		case state.AttemptStartedAt == nil || s.now().Sub(*state.AttemptStartedAt) > s.ttl():
			reason = "attempt expired"
		}
		if reason != "" {
			return domain.ErrInvalidOrExpiredAttempt
		}
		return tx.Model(&domain.TimedTestState{}).
			Where("candidate_id = ?", candidateID).
			Update("attempt_id", nil).Error
	}, "candidate_id = ?", candidateID)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		reason = "no timed test state"
		err = domain.ErrInvalidOrExpiredAttempt
	}
	if errors.Is(err, domain.ErrInvalidOrExpiredAttempt) {
		log.Warn().Str("candidate_id", candidateID.String()).Str("reason", reason).Msg("timed test submission rejected")
		return domain.ErrInvalidOrExpiredAttempt
	}
	return err
}

// Submit consumes the attempt then scores the answers. A scoring failure does
// not give the attempt back; the candidate restarts.
func (s *Service) Submit(ctx context.Context, candidateID uuid.UUID, presented string, answers []scoring.AnswerView) (*SubmitResult, error) {
	if err := s.Consume(ctx, candidateID, presented); err != nil {
		return nil, err
	}
	if s.Scorer == nil {
		return nil, domain.ErrScoringFailed
	}
	res, err := s.Scorer.Score(ctx, scoring.Input{CandidateID: candidateID, Answers: answers})
	if err != nil {
		log.Error().Err(err).Str("candidate_id", candidateID.String()).Msg("timed test scoring failed after consume")
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringFailed, err)
	}

	now := s.now()
	if err := s.DB.WithContext(ctx).Model(&domain.TimedTestState{}).
		Where("candidate_id = ?", candidateID).
		Updates(map[string]interface{}{"last_score": res.Overall, "last_submitted_at": now}).Error; err != nil {
		return nil, err
	}
	return &SubmitResult{Score: res.Overall, Summary: res.Summary, SubmittedAt: now}, nil
}

// Status reports whether a live attempt exists and how long it has left.
func (s *Service) Status(ctx context.Context, candidateID uuid.UUID) (*StatusResult, error) {
	var state domain.TimedTestState
	err := s.DB.WithContext(ctx).First(&state, "candidate_id = ?", candidateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &StatusResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := &StatusResult{LastScore: state.LastScore, LastSubmittedAt: state.LastSubmittedAt}
	if state.AttemptID != nil && state.AttemptStartedAt != nil {
		remaining := s.ttl() - s.now().Sub(*state.AttemptStartedAt)
		if remaining > 0 {
			out.Active = true
			out.AttemptStartedAt = state.AttemptStartedAt
			out.RemainingSeconds = int64(remaining / time.Second)
		}
	}
	return out, nil
}
