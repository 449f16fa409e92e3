package attempts

import (
	"context"
	"errors"
	"strings"
	"time"

	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service runs repeatable question-set attempts. One attempt per candidate and
// question set may be open; attempt numbers only grow.
type Service struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start returns the open attempt for (candidate, question set) or opens the
// next one.
func (s *Service) Start(ctx context.Context, candidateID uuid.UUID, questionSetID string, snapshot datatypes.JSON) (*domain.Attempt, error) {
	questionSetID = strings.TrimSpace(questionSetID)
	if candidateID == uuid.Nil || questionSetID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("candidateId and questionSetId are required")
	}

	var out domain.Attempt
	key := domain.AttemptOpenKey(candidateID, questionSetID)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("open_key = ?", *key).First(&out).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var maxNo int
		if err := tx.Model(&domain.Attempt{}).
			Where("candidate_id = ? AND question_set_id = ?", candidateID, questionSetID).
			Select("COALESCE(MAX(attempt_no), 0)").Scan(&maxNo).Error; err != nil {
			return err
		}
		out = domain.Attempt{
			CandidateID:       candidateID,
			QuestionSetID:     questionSetID,
			AttemptNo:         maxNo + 1,
			StartedAt:         s.now(),
			Answers:           datatypes.NewJSONType([]domain.AttemptAnswer{}),
			SelectionSnapshot: snapshot,
			OpenKey:           key,
		}
		return tx.Create(&out).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// a concurrent Start opened it first
		out = domain.Attempt{}
		if ferr := s.DB.WithContext(ctx).Where("open_key = ?", *key).First(&out).Error; ferr != nil {
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return nil, domain.ErrConflict.WithMessage("The attempt was started concurrently")
			}
			return nil, ferr
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	log.Debug().Str("attempt_id", out.ID.String()).Int("attempt_no", out.AttemptNo).Msg("attempt open")
	return &out, nil
}

// RecordAnswer appends an answer or replaces the one for the same question,
// keeping the original position.
func (s *Service) RecordAnswer(ctx context.Context, attemptID uuid.UUID, questionID, text string) (*domain.Attempt, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return nil, domain.ErrInvalidRequest.WithMessage("questionId is required")
	}
	var a domain.Attempt
	err := database.WithRowLock(ctx, s.DB, &a, attemptID, func(tx *gorm.DB) error {
		if a.CompletedAt != nil {
			return domain.ErrConflict.WithMessage("This attempt has already been finished")
		}
		list := a.Answers.Data()
		entry := domain.AttemptAnswer{QuestionID: questionID, Text: text, AnsweredAt: s.now()}
		replaced := false
		for i := range list {
			if list[i].QuestionID == questionID {
				list[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, entry)
		}
		a.Answers = datatypes.NewJSONType(list)
		return tx.Model(&a).Update("answers", a.Answers).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Attempt not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Finish closes the attempt. Finishing twice is a no-op.
func (s *Service) Finish(ctx context.Context, attemptID uuid.UUID) (*domain.Attempt, error) {
	var a domain.Attempt
	err := database.WithRowLock(ctx, s.DB, &a, attemptID, func(tx *gorm.DB) error {
		if a.CompletedAt != nil {
			return nil
		}
		now := s.now()
		if err := tx.Model(&a).Updates(map[string]interface{}{
			"completed_at": now,
			"open_key":     nil,
		}).Error; err != nil {
			return err
		}
		a.CompletedAt = &now
		a.OpenKey = nil
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Attempt not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns the candidate's attempts for a question set, oldest first.
func (s *Service) List(ctx context.Context, candidateID uuid.UUID, questionSetID string) ([]domain.Attempt, error) {
	var out []domain.Attempt
	err := s.DB.WithContext(ctx).
		Where("candidate_id = ? AND question_set_id = ?", candidateID, questionSetID).
		Order("attempt_no ASC").
		Find(&out).Error
	return out, err
}
