package answers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentgate-backend/internal/application/scoring"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScoringPolicy decides what a scoring failure does to completion.
type ScoringPolicy int

const (
	// FailOpen completes the interview anyway and reports ScoringDeferred.
	FailOpen ScoringPolicy = iota
	// FailClosed leaves the interview open and returns ErrScoringFailed.
	FailClosed
)

const maxAnswerLength = 20000

type AnswerInput struct {
	Slot       int    `json:"slot"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// Outcome is what a score function produces for the final profile.
type Outcome struct {
	Scores  interface{}
	Summary string
}

// ScoreFunc scores a locked interview's answers.
type ScoreFunc func(ctx context.Context, iv *domain.Interview, answers []domain.Answer) (*Outcome, error)

type CompleteOptions struct {
	Policy ScoringPolicy
	// Score overrides the service Scorer.
	Score ScoreFunc
	// OnCompleted runs inside the completion transaction, after the interview
	// row is marked COMPLETED.
	OnCompleted func(tx *gorm.DB, iv *domain.Interview) error
}

type CompletionResult struct {
	Interview        *domain.Interview `json:"interview"`
	Profile          *domain.Profile   `json:"profile,omitempty"`
	ScoringDeferred  bool              `json:"scoringDeferred"`
	ProfilePreserved bool              `json:"profilePreserved"`
}

type Service struct {
	DB     *gorm.DB
	Scorer scoring.Scorer
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GetInterview loads an interview by id.
func (s *Service) GetInterview(ctx context.Context, interviewID uuid.UUID) (*domain.Interview, error) {
	var iv domain.Interview
	err := s.DB.WithContext(ctx).First(&iv, "id = ?", interviewID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Interview not found")
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

// SubmitAnswer upserts the answer for (interview, slot). A question already
// bound to a different slot is rejected with ErrDuplicateQuestion; the same
// slot can be edited freely.
func (s *Service) SubmitAnswer(ctx context.Context, interviewID uuid.UUID, in AnswerInput) (*domain.Answer, error) {
	iv, err := s.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, s.DB.WithContext(ctx), iv, in)
}

// SubmitBatch applies answers in order and stops at the first failure.
// Answers written before the failure are kept.
func (s *Service) SubmitBatch(ctx context.Context, interviewID uuid.UUID, in []AnswerInput) ([]domain.Answer, error) {
	iv, err := s.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Answer, 0, len(in))
	for i, a := range in {
		ans, err := s.submit(ctx, s.DB.WithContext(ctx), iv, a)
		if err != nil {
			if de, ok := domain.AsError(err); ok {
				return out, de.WithDetails(map[string]interface{}{"index": i, "slot": a.Slot})
			}
			return out, err
		}
		out = append(out, *ans)
	}
	return out, nil
}

// UpsertTx writes an answer inside an existing transaction. Used by the voice
// pipeline when a transcription lands.
func (s *Service) UpsertTx(ctx context.Context, tx *gorm.DB, iv *domain.Interview, in AnswerInput) (*domain.Answer, error) {
	return s.submit(ctx, tx, iv, in)
}

func (s *Service) submit(ctx context.Context, db *gorm.DB, iv *domain.Interview, in AnswerInput) (*domain.Answer, error) {
	if iv.IsCompleted() {
		return nil, domain.ErrConflict
	}
	if err := validateSlot(iv, in.Slot); err != nil {
		return nil, err
	}
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	if in.QuestionID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("questionId is required")
	}
	if len(in.Text) > maxAnswerLength {
		return nil, domain.ErrInvalidRequest.WithMessage("Answer is too long")
	}
	if err := CheckQuestionSlot(db, iv.ID, in.QuestionID, in.Slot); err != nil {
		return nil, err
	}

	ans := domain.Answer{
		InterviewID: iv.ID,
		Slot:        in.Slot,
		QuestionID:  in.QuestionID,
		Text:        in.Text,
		AnsweredAt:  s.now(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interview_id"}, {Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"question_id", "text", "answered_at", "updated_at"}),
	}).Create(&ans).Error
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	var stored domain.Answer
	if err := db.Where("interview_id = ? AND slot = ?", iv.ID, in.Slot).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func validateSlot(iv *domain.Interview, slot int) error {
	if slot < 1 || (iv.RequiredCount > 0 && slot > iv.RequiredCount) {
		return domain.ErrBadRequest.WithMessage(fmt.Sprintf("slot must be between 1 and %d", iv.RequiredCount))
	}
	return nil
}

// CheckQuestionSlot fails with ErrDuplicateQuestion when questionID is already
// answered at a slot other than slot.
func CheckQuestionSlot(db *gorm.DB, interviewID uuid.UUID, questionID string, slot int) error {
	var n int64
	if err := db.Model(&domain.Answer{}).
		Where("interview_id = ? AND question_id = ? AND slot <> ?", interviewID, questionID, slot).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrDuplicateQuestion
	}
	return nil
}

// CountAnswered returns the number of answered slots.
func (s *Service) CountAnswered(ctx context.Context, interviewID uuid.UUID) (int, error) {
	return countAnswered(s.DB.WithContext(ctx), interviewID)
}

func countAnswered(db *gorm.DB, interviewID uuid.UUID) (int, error) {
	var n int64
	err := db.Model(&domain.Answer{}).Where("interview_id = ? AND TRIM(text) <> ''", interviewID).Count(&n).Error
	return int(n), err
}

// List returns the answers of an interview in slot order.
func (s *Service) List(ctx context.Context, interviewID uuid.UUID) ([]domain.Answer, error) {
	var out []domain.Answer
	err := s.DB.WithContext(ctx).Where("interview_id = ?", interviewID).Order("slot ASC").Find(&out).Error
	return out, err
}

// Complete marks the interview COMPLETED once requiredCount answers exist and
// scores it according to opts.Policy. Runs under a row lock on the interview so
// that a parallel completion sees the first caller's final profile and gets
// ProfilePreserved instead of scoring twice.
func (s *Service) Complete(ctx context.Context, interviewID uuid.UUID, requiredCount int, opts CompleteOptions) (*CompletionResult, error) {
	score := opts.Score
	if score == nil {
		score = s.defaultScore
	}

	result := &CompletionResult{}
	var iv domain.Interview
	err := database.WithRowLock(ctx, s.DB, &iv, interviewID, func(tx *gorm.DB) error {
		var existing domain.Profile
		err := tx.Where("interview_id = ? AND is_final = ?", iv.ID, true).First(&existing).Error
		if err == nil {
			result.Profile = &existing
			result.ProfilePreserved = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if iv.IsCompleted() {
			return domain.ErrConflict
		}

		answered, err := countAnswered(tx, iv.ID)
		if err != nil {
			return err
		}
		if answered < requiredCount {
			return domain.ErrIncomplete.WithDetails(map[string]int{"answered": answered, "required": requiredCount})
		}

		var answers []domain.Answer
		if err := tx.Where("interview_id = ?", iv.ID).Order("slot ASC").Find(&answers).Error; err != nil {
			return err
		}

		outcome, scoreErr := score(ctx, &iv, answers)
		if scoreErr != nil {
			if opts.Policy == FailClosed {
				log.Error().Err(scoreErr).Str("interview_id", iv.ID.String()).Msg("scoring failed, completion refused")
				return fmt.Errorf("%w: %v", domain.ErrScoringFailed, scoreErr)
			}
			log.Warn().Err(scoreErr).Str("interview_id", iv.ID.String()).Msg("scoring failed, completion continues with scoring deferred")
			result.ScoringDeferred = true
		} else {
			profile, err := finalProfile(&iv, outcome)
			if err != nil {
				return err
			}
			if err := tx.Create(profile).Error; err != nil {
				return err
			}
			result.Profile = profile
		}

		now := s.now()
		if err := tx.Model(&iv).Updates(map[string]interface{}{
			"status":       domain.InterviewCompleted,
			"completed_at": now,
			"open_key":     nil,
		}).Error; err != nil {
			return err
		}
		iv.Status = domain.InterviewCompleted
		iv.CompletedAt = &now
		iv.OpenKey = nil

		if opts.OnCompleted != nil {
			return opts.OnCompleted(tx, &iv)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Interview not found")
	}
	if err != nil {
		return nil, err
	}
	result.Interview = &iv
	return result, nil
}

// Rescore retries scoring for a completed interview whose scoring was
// deferred. A final profile is never replaced.
func (s *Service) Rescore(ctx context.Context, interviewID uuid.UUID) (*CompletionResult, error) {
	result := &CompletionResult{}
	var iv domain.Interview
	err := database.WithRowLock(ctx, s.DB, &iv, interviewID, func(tx *gorm.DB) error {
		if !iv.IsCompleted() {
			return domain.ErrBadRequest.WithMessage("Interview is not completed")
		}
		var existing domain.Profile
		err := tx.Where("interview_id = ? AND is_final = ?", iv.ID, true).First(&existing).Error
		if err == nil {
			result.Profile = &existing
			result.ProfilePreserved = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		var answers []domain.Answer
		if err := tx.Where("interview_id = ?", iv.ID).Order("slot ASC").Find(&answers).Error; err != nil {
			return err
		}
		outcome, err := s.defaultScore(ctx, &iv, answers)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrScoringFailed, err)
		}
		profile, err := finalProfile(&iv, outcome)
		if err != nil {
			return err
		}
		result.Profile = profile
		return tx.Create(profile).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Interview not found")
	}
	if err != nil {
		return nil, err
	}
	result.Interview = &iv
	return result, nil
}

func (s *Service) defaultScore(ctx context.Context, iv *domain.Interview, answers []domain.Answer) (*Outcome, error) {
	if s.Scorer == nil {
		return nil, errors.New("no scorer configured")
	}
	views := make([]scoring.AnswerView, 0, len(answers))
	for _, a := range answers {
		views = append(views, scoring.AnswerView{Slot: a.Slot, QuestionID: a.QuestionID, Text: a.Text})
	}
	res, err := s.Scorer.Score(ctx, scoring.Input{CandidateID: iv.CandidateID, InterviewID: iv.ID, Answers: views})
	if err != nil {
		return nil, err
	}
	return &Outcome{Scores: res, Summary: res.Summary}, nil
}

func finalProfile(iv *domain.Interview, o *Outcome) (*domain.Profile, error) {
	b, err := json.Marshal(o.Scores)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	return &domain.Profile{
		CandidateID: iv.CandidateID,
		InterviewID: iv.ID,
		IsFinal:     true,
		Scores:      b,
		Summary:     o.Summary,
	}, nil
}
