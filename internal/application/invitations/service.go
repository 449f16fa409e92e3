package invitations

import (
	"context"
	"errors"
	"time"

	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultInviteTTL = 7 * 24 * time.Hour

// Service owns invitation state. No other component changes invitation status.
type Service struct {
	DB        *gorm.DB
	Questions questionsets.Resolver
	HashKey   []byte
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Resolve finds the invitation whose stored hash matches the presented token.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.Invitation, error) {
	if token == "" || len(token) > 256 {
		return nil, domain.ErrForbidden
	}
	var inv domain.Invitation
	err := s.DB.WithContext(ctx).Where("token_hash = ?", HashToken(s.HashKey, token)).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("Invitation not found")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CheckExpiry reports whether inv is expired. A non-terminal invitation past
// its deadline is moved to EXPIRED before returning.
func (s *Service) CheckExpiry(ctx context.Context, inv *domain.Invitation) (bool, error) {
	if inv.Status == domain.InvitationExpired {
		return true, nil
	}
	if inv.Status == domain.InvitationCompleted || !inv.IsExpiredAt(s.now()) {
		return false, nil
	}
	res := s.DB.WithContext(ctx).Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", inv.ID, inv.Status).
		Update("status", domain.InvitationExpired)
	if res.Error != nil {
		return true, res.Error
	}
	log.Info().Str("invitation_id", inv.ID.String()).Str("from", inv.Status).Msg("invitation expired on access")
	inv.Status = domain.InvitationExpired
	return true, nil
}

// Access resolves a token and enforces expiry. Unknown tokens are Forbidden to
// the caller.
func (s *Service) Access(ctx context.Context, token string) (*domain.Invitation, error) {
	inv, err := s.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	expired, err := s.CheckExpiry(ctx, inv)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, domain.ErrGone
	}
	return inv, nil
}

// AccessStarted is Access restricted to invitations with a live interview.
func (s *Service) AccessStarted(ctx context.Context, token string) (*domain.Invitation, error) {
	inv, err := s.Access(ctx, token)
	if err != nil {
		return nil, err
	}
	switch {
	case inv.Status == domain.InvitationCompleted:
		return nil, domain.ErrConflict
	case !s.CanResume(inv):
		return nil, domain.ErrBadRequest.WithMessage("The assessment has not been started")
	}
	return inv, nil
}

// MarkStarted moves an INVITED invitation to STARTED and creates its interview
// in the same transaction.
func (s *Service) MarkStarted(ctx context.Context, inv *domain.Invitation, clientIP string) (*domain.Interview, error) {
	if err := s.guardTransition(ctx, inv, domain.InvitationInvited); err != nil {
		return nil, err
	}

	kind, phase, phaseNum := domain.KindStandard, (*int)(nil), 0
	if inv.Workflow == domain.KindAdaptive {
		kind, phase, phaseNum = domain.KindAdaptive, domain.IntPtr(1), 1
	}
	qs, err := s.Questions.Resolve(ctx, questionsets.Query{
		Position: inv.PositionCode,
		Locale:   inv.Locale,
		Country:  inv.Country,
		Workflow: inv.Workflow,
		Phase:    phaseNum,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	iv := &domain.Interview{
		CandidateID:   inv.CandidateID,
		InvitationID:  &inv.ID,
		Kind:          kind,
		Phase:         phase,
		Status:        domain.InterviewInProgress,
		PositionCode:  inv.PositionCode,
		Language:      inv.Locale,
		QuestionSetID: qs.ID,
		RequiredCount: qs.RequiredCount(),
		Meta:          inv.Meta,
		OpenKey:       domain.InterviewOpenKey(inv.CandidateID, kind, phase),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&domain.Interview{}).Where("open_key = ?", *iv.OpenKey).Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrConflict.WithMessage("The candidate already has an assessment in progress")
		}
		if err := tx.Create(iv).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Invitation{}).
			Where("id = ? AND status = ?", inv.ID, domain.InvitationInvited).
			Updates(map[string]interface{}{
				"status":       domain.InvitationStarted,
				"interview_id": iv.ID,
				"started_at":   now,
				"started_ip":   clientIP,
				"access_count": gorm.Expr("access_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrBadRequest.WithMessage("The assessment was started concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Status = domain.InvitationStarted
	inv.InterviewID = &iv.ID
	inv.StartedAt = &now
	inv.StartedIP = clientIP
	inv.AccessCount++
	log.Info().Str("invitation_id", inv.ID.String()).Str("interview_id", iv.ID.String()).Msg("invitation started")
	return iv, nil
}

// CanResume is true for a STARTED, unexpired invitation that has an interview.
func (s *Service) CanResume(inv *domain.Invitation) bool {
	return inv.Status == domain.InvitationStarted && !inv.IsExpiredAt(s.now()) && inv.InterviewID != nil
}

// Resume returns the interview of a started invitation and counts the access.
func (s *Service) Resume(ctx context.Context, inv *domain.Invitation) (*domain.Interview, error) {
	expired, err := s.CheckExpiry(ctx, inv)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, domain.ErrGone
	}
	if inv.Status == domain.InvitationCompleted {
		return nil, domain.ErrConflict
	}
	if !s.CanResume(inv) {
		return nil, domain.ErrBadRequest.WithMessage("The assessment cannot be resumed")
	}
	if err := s.DB.WithContext(ctx).Model(&domain.Invitation{}).Where("id = ?", inv.ID).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error; err != nil {
		return nil, err
	}
	inv.AccessCount++

	var iv domain.Interview
	if err := s.DB.WithContext(ctx).First(&iv, "id = ?", *inv.InterviewID).Error; err != nil {
		return nil, err
	}
	return &iv, nil
}

// Begin opens the assessment behind token: INVITED starts it, STARTED resumes.
func (s *Service) Begin(ctx context.Context, token, clientIP string) (*domain.Invitation, *domain.Interview, bool, error) {
	inv, err := s.Access(ctx, token)
	if err != nil {
		return nil, nil, false, err
	}
	switch inv.Status {
	case domain.InvitationInvited:
		iv, err := s.MarkStarted(ctx, inv, clientIP)
		return inv, iv, false, err
	case domain.InvitationStarted:
		iv, err := s.Resume(ctx, inv)
		return inv, iv, true, err
	case domain.InvitationCompleted:
		return nil, nil, false, domain.ErrConflict
	default:
		return nil, nil, false, domain.ErrBadRequest
	}
}

// MarkCompleted finishes a STARTED invitation. Terminal.
func (s *Service) MarkCompleted(ctx context.Context, inv *domain.Invitation) error {
	if err := s.guardTransition(ctx, inv, domain.InvitationStarted); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return MarkCompletedTx(tx, inv.ID, s.now())
	}); err != nil {
		return err
	}
	now := s.now()
	inv.Status = domain.InvitationCompleted
	inv.CompletedAt = &now
	return nil
}

// MarkCompletedTx completes the invitation inside the caller's transaction so
// it commits together with the interview completion.
func MarkCompletedTx(tx *gorm.DB, invitationID uuid.UUID, now time.Time) error {
	res := tx.Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", invitationID, domain.InvitationStarted).
		Updates(map[string]interface{}{"status": domain.InvitationCompleted, "completed_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// guardTransition applies expiry and the failure semantics shared by every
// transition out of from.
func (s *Service) guardTransition(ctx context.Context, inv *domain.Invitation, from string) error {
	expired, err := s.CheckExpiry(ctx, inv)
	if err != nil {
		return err
	}
	switch {
	case expired:
		return domain.ErrGone
	case inv.Status == domain.InvitationCompleted:
		return domain.ErrConflict
	case inv.Status != from:
		return domain.ErrBadRequest.WithMessage("The invitation is not in a valid state for this action")
	}
	return nil
}

type IssueInput struct {
	CandidateID  uuid.UUID
	Locale       string
	PositionCode string
	Country      string
	Workflow     string
	TTL          time.Duration
	Meta         datatypes.JSON
}

// Issue creates an invitation and returns its plaintext token. Only the hash
// is persisted; the token cannot be recovered later.
func (s *Service) Issue(ctx context.Context, in IssueInput) (string, *domain.Invitation, error) {
	if in.CandidateID == uuid.Nil {
		return "", nil, domain.ErrInvalidRequest.WithMessage("candidate id is required")
	}
	if in.TTL <= 0 {
		in.TTL = defaultInviteTTL
	}
	if in.Locale == "" {
		in.Locale = "en"
	}
	if in.Workflow == "" {
		in.Workflow = domain.KindStandard
	}
	token := randomHex(32)
	inv := &domain.Invitation{
		CandidateID:  in.CandidateID,
		TokenHash:    HashToken(s.HashKey, token),
		Status:       domain.InvitationInvited,
		Locale:       in.Locale,
		PositionCode: in.PositionCode,
		Country:      in.Country,
		Workflow:     in.Workflow,
		ExpiresAt:    s.now().Add(in.TTL),
		Meta:         in.Meta,
	}
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return "", nil, err
	}
	return token, inv, nil
}
