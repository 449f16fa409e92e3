package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentgate-backend/internal/application/answers"
	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/config"
	"talentgate-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResolutionChoice is the caller's answer to an ambiguous classification.
type ResolutionChoice string

const (
	ResolutionNone     ResolutionChoice = ""
	ProceedWithPrimary ResolutionChoice = "PROCEED_WITH_PRIMARY"
	UseSecondary       ResolutionChoice = "USE_SECONDARY"
)

func ParseResolution(s string) (ResolutionChoice, error) {
	switch c := ResolutionChoice(strings.ToUpper(strings.TrimSpace(s))); c {
	case ResolutionNone, ProceedWithPrimary, UseSecondary:
		return c, nil
	}
	return ResolutionNone, domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("Unknown resolution %q", s))
}

type Phase2Start struct {
	Interview      *domain.Interview       `json:"interview,omitempty"`
	CommandClass   string                  `json:"commandClass"`
	Confidence     float64                 `json:"confidence"`
	Scenarios      []questionsets.Question `json:"scenarios,omitempty"`
	NeedsReview    bool                    `json:"needsReview"`
	SecondaryClass *ClassScore             `json:"secondaryClass,omitempty"`
}

type Phase2Result struct {
	CapabilityScore  *CapabilityScore  `json:"capabilityScore"`
	DeploymentPacket *DeploymentPacket `json:"deploymentPacket"`
	ProfilePreserved bool              `json:"profilePreserved"`
}

// Service drives the two-phase adaptive assessment: an identity phase that
// classifies the candidate, then a scenario phase chosen from that class.
type Service struct {
	DB         *gorm.DB
	Answers    *answers.Service
	Questions  questionsets.Resolver
	Classifier Classifier
	Scorer     CapabilityScorer
	Workflow   config.Workflow
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// completeInvitation closes the invitation behind an interview in the
// completion transaction. Interviews started through the service API have
// none; an invitation no longer STARTED is left as it is.
func (s *Service) completeInvitation(tx *gorm.DB, iv *domain.Interview) error {
	if iv.InvitationID == nil {
		return nil
	}
	err := invsvc.MarkCompletedTx(tx, *iv.InvitationID, s.now())
	if errors.Is(err, domain.ErrConflict) {
		log.Warn().Str("invitation_id", iv.InvitationID.String()).Str("interview_id", iv.ID.String()).
			Msg("invitation not in started state, left unchanged")
		return nil
	}
	return err
}

// firstOpen returns the open interview holding key, or nil.
func firstOpen(tx *gorm.DB, key string) (*domain.Interview, error) {
	var open domain.Interview
	err := tx.Where("open_key = ?", key).First(&open).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &open, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID, phase int) (*domain.Interview, error) {
	iv, err := s.Answers.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	if iv.Kind != domain.KindAdaptive || iv.PhaseValue() != phase {
		return nil, domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("Interview is not an adaptive phase %d interview", phase))
	}
	return iv, nil
}

// StartPhase1 opens the identity phase, or returns the candidate's open one.
func (s *Service) StartPhase1(ctx context.Context, candidateID uuid.UUID, language string, meta datatypes.JSON) (*domain.Interview, error) {
	if candidateID == uuid.Nil {
		return nil, domain.ErrInvalidRequest.WithMessage("candidateId is required")
	}
	if language == "" {
		language = "en"
	}
	qs, err := s.Questions.Resolve(ctx, questionsets.Query{Locale: language, Workflow: domain.KindAdaptive, Phase: 1})
	if err != nil {
		return nil, err
	}
	phase := domain.IntPtr(1)
	iv := &domain.Interview{
		CandidateID:   candidateID,
		Kind:          domain.KindAdaptive,
		Phase:         phase,
		Status:        domain.InterviewInProgress,
		Language:      language,
		QuestionSetID: qs.ID,
		RequiredCount: qs.RequiredCount(),
		Meta:          meta,
		OpenKey:       domain.InterviewOpenKey(candidateID, domain.KindAdaptive, phase),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := firstOpen(tx, *iv.OpenKey)
		if err != nil {
			return err
		}
		if open != nil {
			iv = open
			return nil
		}
		return tx.Create(iv).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a concurrent start
		open, ferr := firstOpen(s.DB.WithContext(ctx), *iv.OpenKey)
		if ferr != nil {
			return nil, ferr
		}
		if open != nil && open.PhaseValue() == 1 {
			return open, nil
		}
		return nil, domain.ErrConflict.WithMessage("The candidate already has an adaptive interview in progress")
	}
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// SubmitPhase1Answers writes identity answers through the answer engine.
func (s *Service) SubmitPhase1Answers(ctx context.Context, interviewID uuid.UUID, in []answers.AnswerInput) ([]domain.Answer, error) {
	if _, err := s.load(ctx, interviewID, 1); err != nil {
		return nil, err
	}
	return s.Answers.SubmitBatch(ctx, interviewID, in)
}

// CompletePhase1 extracts identity fields, classifies and completes phase 1.
// Missing required fields fail with IncompleteIdentity and change nothing.
func (s *Service) CompletePhase1(ctx context.Context, interviewID uuid.UUID) (*Classification, error) {
	iv, err := s.load(ctx, interviewID, 1)
	if err != nil {
		return nil, err
	}
	if iv.IsCompleted() {
		if c, ok := storedClassification(iv); ok {
			return c, nil
		}
		return nil, domain.ErrConflict
	}

	qs, err := s.Questions.ByID(ctx, iv.QuestionSetID)
	if err != nil {
		return nil, err
	}
	list, err := s.Answers.List(ctx, iv.ID)
	if err != nil {
		return nil, err
	}
	identity, missing := ExtractIdentity(qs, list)
	if len(missing) > 0 {
		return nil, domain.ErrIncompleteIdentity.WithDetails(map[string]interface{}{"missingFields": missing})
	}

	cls, err := s.Classifier.Classify(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("interview_id", iv.ID.String()).Msg("classification failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringFailed, err)
	}
	raw, err := json.Marshal(cls)
	if err != nil {
		return nil, err
	}

	res, err := s.Answers.Complete(ctx, iv.ID, qs.RequiredCount(), answers.CompleteOptions{
		Policy: answers.FailOpen,
		OnCompleted: func(tx *gorm.DB, done *domain.Interview) error {
			if err := tx.Model(done).Updates(map[string]interface{}{
				"command_class_detected":   cls.CommandClass,
				"command_class_confidence": cls.Confidence,
				"classification":           datatypes.JSON(raw),
			}).Error; err != nil {
				return err
			}
			if s.Workflow.Phase2Enabled {
				return nil
			}
			return s.completeInvitation(tx, done)
		},
	})
	if errors.Is(err, domain.ErrConflict) {
		// completed concurrently
		if done, lerr := s.Answers.GetInterview(ctx, iv.ID); lerr == nil {
			if c, ok := storedClassification(done); ok {
				return c, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if res.ProfilePreserved {
		if c, ok := storedClassification(res.Interview); ok {
			return c, nil
		}
	}
	log.Info().
		Str("interview_id", iv.ID.String()).
		Str("class", cls.CommandClass).
		Float64("confidence", cls.Confidence).
		Bool("scoring_deferred", res.ScoringDeferred).
		Msg("phase 1 classified")
	return cls, nil
}

// ExtractIdentity maps each field-keyed question to its trimmed answer and
// lists the required fields left empty, in question order.
func ExtractIdentity(qs *questionsets.QuestionSet, list []domain.Answer) (map[string]string, []string) {
	byQuestion := make(map[string]string, len(list))
	for _, a := range list {
		byQuestion[a.QuestionID] = strings.TrimSpace(a.Text)
	}
	identity := map[string]string{}
	missing := []string{}
	for _, q := range qs.Questions {
		if q.FieldKey == "" {
			continue
		}
		v := byQuestion[q.ID]
		if v == "" {
			if q.Required {
				missing = append(missing, q.FieldKey)
			}
			continue
		}
		identity[q.FieldKey] = v
	}
	return identity, missing
}

func storedClassification(iv *domain.Interview) (*Classification, bool) {
	if len(iv.Classification) == 0 {
		return nil, false
	}
	var c Classification
	if err := json.Unmarshal(iv.Classification, &c); err != nil {
		return nil, false
	}
	return &c, true
}

// StartPhase2 picks the scenario set from the committed phase-1
// classification. Ambiguous classifications need an explicit resolution.
func (s *Service) StartPhase2(ctx context.Context, phase1ID uuid.UUID, choice ResolutionChoice) (*Phase2Start, error) {
	if !s.Workflow.Phase2Enabled {
		return nil, domain.ErrInvalidRequest.WithMessage("Phase 2 is not enabled for this workflow")
	}
	p1, err := s.load(ctx, phase1ID, 1)
	if err != nil {
		return nil, err
	}
	cls, ok := storedClassification(p1)
	if !p1.IsCompleted() || !ok {
		return nil, domain.ErrInvalidRequest.WithMessage("Phase 1 is not completed")
	}

	var existing domain.Interview
	err = s.DB.WithContext(ctx).Where("parent_interview_id = ? AND phase = ?", p1.ID, 2).First(&existing).Error
	if err == nil {
		return s.phase2View(&existing, cls)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	out := &Phase2Start{CommandClass: cls.CommandClass, Confidence: cls.Confidence}
	secondary, hasSecondary := cls.Secondary()
	if hasSecondary {
		out.SecondaryClass = &secondary
	}
	out.NeedsReview = s.needsReview(cls)

	switch choice {
	case ResolutionNone:
		if out.NeedsReview {
			return out, domain.ErrNeedsReview.WithDetails(out)
		}
	case UseSecondary:
		if !hasSecondary {
			return nil, domain.ErrInvalidRequest.WithMessage("No secondary class to use")
		}
		out.CommandClass, out.Confidence = secondary.Class, secondary.Confidence
	case ProceedWithPrimary:
	default:
		return nil, domain.ErrInvalidRequest.WithMessage("Unknown resolution")
	}

	scenarios, err := questionsets.Scenarios(out.CommandClass, s.Workflow.ScenarioCount)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(map[string]interface{}{
		"resolution":  string(choice),
		"scenarioIds": questionIDs(scenarios),
	})
	if err != nil {
		return nil, err
	}
	phase := domain.IntPtr(2)
	class := out.CommandClass
	conf := out.Confidence
	iv := &domain.Interview{
		CandidateID:            p1.CandidateID,
		InvitationID:           p1.InvitationID,
		Kind:                   domain.KindAdaptive,
		Phase:                  phase,
		Status:                 domain.InterviewInProgress,
		PositionCode:           p1.PositionCode,
		Language:               p1.Language,
		QuestionSetID:          "scn-" + class,
		RequiredCount:          len(scenarios),
		Meta:                   meta,
		CommandClassDetected:   &class,
		CommandClassConfidence: &conf,
		ParentInterviewID:      &p1.ID,
		OpenKey:                domain.InterviewOpenKey(p1.CandidateID, domain.KindAdaptive, phase),
	}
	err = s.DB.WithContext(ctx).Create(iv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the open key is taken: a concurrent start for this phase 1, or
		// another phase 2 still open for the candidate
		var existing domain.Interview
		ferr := s.DB.WithContext(ctx).Where("parent_interview_id = ? AND phase = ?", p1.ID, 2).First(&existing).Error
		if ferr == nil {
			return s.phase2View(&existing, cls)
		}
		return nil, domain.ErrConflict.WithMessage("The candidate already has a phase 2 interview in progress")
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("phase1_id", p1.ID.String()).Str("interview_id", iv.ID.String()).Str("class", class).Msg("phase 2 started")
	out.Interview = iv
	out.Scenarios = scenarios
	return out, nil
}

func (s *Service) needsReview(cls *Classification) bool {
	if cls.Confidence < s.Workflow.ConfidenceThreshold {
		return true
	}
	if sec, ok := cls.Secondary(); ok && cls.Confidence-sec.Confidence <= s.Workflow.TieMargin {
		return true
	}
	return false
}

func (s *Service) phase2View(iv *domain.Interview, cls *Classification) (*Phase2Start, error) {
	class := ""
	if iv.CommandClassDetected != nil {
		class = *iv.CommandClassDetected
	}
	scenarios, err := questionsets.Scenarios(class, iv.RequiredCount)
	if err != nil {
		return nil, err
	}
	out := &Phase2Start{Interview: iv, CommandClass: class, Scenarios: scenarios}
	if iv.CommandClassConfidence != nil {
		out.Confidence = *iv.CommandClassConfidence
	}
	if sec, ok := cls.Secondary(); ok {
		out.SecondaryClass = &sec
	}
	return out, nil
}

func questionIDs(qs []questionsets.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

// scenariosOf rebuilds a phase-2 interview's scenario list.
func scenariosOf(iv *domain.Interview) ([]questionsets.Question, error) {
	if iv.CommandClassDetected == nil {
		return nil, domain.ErrInvalidRequest.WithMessage("Interview has no command class")
	}
	return questionsets.Scenarios(*iv.CommandClassDetected, iv.RequiredCount)
}

// SubmitPhase2Answer stores the answer for a scenario slot. The question id is
// taken from the scenario, never from the client.
func (s *Service) SubmitPhase2Answer(ctx context.Context, interviewID uuid.UUID, slot int, text string) (*domain.Answer, error) {
	iv, err := s.load(ctx, interviewID, 2)
	if err != nil {
		return nil, err
	}
	scenarios, err := scenariosOf(iv)
	if err != nil {
		return nil, err
	}
	if slot < 1 || slot > len(scenarios) {
		return nil, domain.ErrBadRequest.WithMessage(fmt.Sprintf("slot must be between 1 and %d", len(scenarios)))
	}
	return s.Answers.SubmitAnswer(ctx, interviewID, answers.AnswerInput{
		Slot:       slot,
		QuestionID: scenarios[slot-1].ID,
		Text:       text,
	})
}

// CompletePhase2 scores every scenario answer and stores the deployment
// packet. Scoring is fail-closed: the interview stays open on error.
func (s *Service) CompletePhase2(ctx context.Context, interviewID uuid.UUID) (*Phase2Result, error) {
	iv, err := s.load(ctx, interviewID, 2)
	if err != nil {
		return nil, err
	}
	scenarios, err := scenariosOf(iv)
	if err != nil {
		return nil, err
	}
	dimensionOf := make(map[string]string, len(scenarios))
	for _, q := range scenarios {
		dimensionOf[q.ID] = q.Dimension
	}

	var score *CapabilityScore
	var packet *DeploymentPacket
	res, err := s.Answers.Complete(ctx, iv.ID, len(scenarios), answers.CompleteOptions{
		Policy: answers.FailClosed,
		Score: func(ctx context.Context, locked *domain.Interview, list []domain.Answer) (*answers.Outcome, error) {
			in := make([]ScenarioAnswer, 0, len(list))
			for _, a := range list {
				in = append(in, ScenarioAnswer{Slot: a.Slot, QuestionID: a.QuestionID, Dimension: dimensionOf[a.QuestionID], Text: a.Text})
			}
			cs, err := s.Scorer.Score(ctx, *locked.CommandClassDetected, in)
			if err != nil {
				return nil, err
			}
			score = cs
			packet = buildPacket(locked.CandidateID.String(), locked.ID.String(), *locked.CommandClassDetected, cs)
			return &answers.Outcome{Scores: packet, Summary: fmt.Sprintf("%s: %s (%.2f)", packet.CommandClass, packet.Readiness, packet.Composite)}, nil
		},
		OnCompleted: func(tx *gorm.DB, done *domain.Interview) error {
			raw, err := json.Marshal(packet)
			if err != nil {
				return err
			}
			if err := tx.Model(done).Update("capability_profile", datatypes.JSON(raw)).Error; err != nil {
				return err
			}
			return s.completeInvitation(tx, done)
		},
	})
	if err != nil {
		return nil, err
	}
	if res.ProfilePreserved {
		var stored DeploymentPacket
		if err := json.Unmarshal(res.Profile.Scores, &stored); err != nil {
			return nil, fmt.Errorf("decode stored packet: %w", err)
		}
		return &Phase2Result{
			CapabilityScore:  &CapabilityScore{Dimensions: stored.Dimensions, Composite: stored.Composite, Readiness: stored.Readiness},
			DeploymentPacket: &stored,
			ProfilePreserved: true,
		}, nil
	}
	log.Info().Str("interview_id", iv.ID.String()).Str("readiness", score.Readiness).Msg("phase 2 completed")
	return &Phase2Result{CapabilityScore: score, DeploymentPacket: packet}, nil
}
