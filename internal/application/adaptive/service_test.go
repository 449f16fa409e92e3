package adaptive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"talentgate-backend/internal/application/answers"
	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/application/scoring"
	"talentgate-backend/internal/config"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClassifier struct{ cls *Classification }

func (f fixedClassifier) Classify(ctx context.Context, identity map[string]string) (*Classification, error) {
	return f.cls, nil
}

type brokenScorer struct{}

func (brokenScorer) Score(ctx context.Context, class string, in []ScenarioAnswer) (*CapabilityScore, error) {
	return nil, errors.New("model unavailable")
}

var clearLead = &Classification{
	CommandClass: domain.ClassTeamLead,
	Confidence:   0.8,
	AlternativeClasses: []ClassScore{
		{Class: domain.ClassCoordinator, Confidence: 0.1},
		{Class: domain.ClassFieldOperator, Confidence: 0.1},
	},
}

var tiedLead = &Classification{
	CommandClass: domain.ClassTeamLead,
	Confidence:   0.52,
	AlternativeClasses: []ClassScore{
		{Class: domain.ClassFieldOperator, Confidence: 0.48},
	},
}

func setupAdaptive(t *testing.T, cls Classifier) *Service {
	db := testutil.NewDB(t)
	return &Service{
		DB:         db,
		Answers:    &answers.Service{DB: db, Scorer: scoring.Heuristic{}},
		Questions:  questionsets.NewCatalog(),
		Classifier: cls,
		Scorer:     HeuristicCapabilityScorer{},
		Workflow:   config.DefaultAdaptiveWorkflow(),
	}
}

func identityAnswers(n int) []answers.AnswerInput {
	out := make([]answers.AnswerInput, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, answers.AnswerInput{
			Slot:       i,
			QuestionID: questionID(i),
			Text:       "Shift supervisor leading a team of 9 in a warehouse",
		})
	}
	return out
}

func questionID(slot int) string {
	return fmt.Sprintf("idn-%02d", slot)
}

func completedPhase1(t *testing.T, svc *Service) *domain.Interview {
	ctx := context.Background()
	iv, err := svc.StartPhase1(ctx, uuid.New(), "en", nil)
	require.NoError(t, err)
	_, err = svc.SubmitPhase1Answers(ctx, iv.ID, identityAnswers(12))
	require.NoError(t, err)
	_, err = svc.CompletePhase1(ctx, iv.ID)
	require.NoError(t, err)
	return iv
}

func TestStartPhase1_ReturnsOpenInterview(t *testing.T) {
	svc := setupAdaptive(t, KeywordClassifier{})
	cand := uuid.New()
	a, err := svc.StartPhase1(context.Background(), cand, "en", nil)
	require.NoError(t, err)
	b, err := svc.StartPhase1(context.Background(), cand, "en", nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 12, a.RequiredCount)
	assert.Equal(t, 1, a.PhaseValue())
}

func TestCompletePhase1_MissingIdentityFields(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	ctx := context.Background()
	iv, err := svc.StartPhase1(ctx, uuid.New(), "en", nil)
	require.NoError(t, err)
	_, err = svc.SubmitPhase1Answers(ctx, iv.ID, identityAnswers(10))
	require.NoError(t, err)

	_, err = svc.CompletePhase1(ctx, iv.ID)
	require.ErrorIs(t, err, domain.ErrIncompleteIdentity)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	details := de.Details.(map[string]interface{})
	assert.Equal(t, []string{"languages", "career_goal"}, details["missingFields"])

	stored, err := svc.Answers.GetInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewInProgress, stored.Status)
	assert.Nil(t, stored.CommandClassDetected)

	_, err = svc.StartPhase2(ctx, iv.ID, ResolutionNone)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCompletePhase1_StoresClassification(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	iv := completedPhase1(t, svc)

	stored, err := svc.Answers.GetInterview(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewCompleted, stored.Status)
	require.NotNil(t, stored.CommandClassDetected)
	assert.Equal(t, domain.ClassTeamLead, *stored.CommandClassDetected)
	assert.InDelta(t, 0.8, *stored.CommandClassConfidence, 1e-9)

	again, err := svc.CompletePhase1(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassTeamLead, again.CommandClass)
}

func TestStartPhase2_TieNeedsReview(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{tiedLead})
	p1 := completedPhase1(t, svc)
	ctx := context.Background()

	start, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.ErrorIs(t, err, domain.ErrNeedsReview)
	require.NotNil(t, start)
	assert.True(t, start.NeedsReview)
	assert.Nil(t, start.Interview)
	require.NotNil(t, start.SecondaryClass)
	assert.Equal(t, domain.ClassFieldOperator, start.SecondaryClass.Class)

	var n int64
	require.NoError(t, svc.DB.Model(&domain.Interview{}).Where("parent_interview_id = ?", p1.ID).Count(&n).Error)
	assert.Zero(t, n)

	chosen, err := svc.StartPhase2(ctx, p1.ID, UseSecondary)
	require.NoError(t, err)
	require.NotNil(t, chosen.Interview)
	assert.Equal(t, domain.ClassFieldOperator, chosen.CommandClass)
	assert.Len(t, chosen.Scenarios, 8)
	assert.Equal(t, 8, chosen.Interview.RequiredCount)

	again, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)
	assert.Equal(t, chosen.Interview.ID, again.Interview.ID)
	assert.Equal(t, domain.ClassFieldOperator, again.CommandClass)
}

func TestStartPhase2_DeterministicScenarios(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	p1 := completedPhase1(t, svc)

	start, err := svc.StartPhase2(context.Background(), p1.ID, ResolutionNone)
	require.NoError(t, err)
	assert.False(t, start.NeedsReview)
	assert.Equal(t, domain.ClassTeamLead, start.CommandClass)
	expected, err := questionsets.Scenarios(domain.ClassTeamLead, 8)
	require.NoError(t, err)
	assert.Equal(t, expected, start.Scenarios)
	assert.Equal(t, p1.ID, *start.Interview.ParentInterviewID)
}

func TestStartPhase2_Disabled(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	svc.Workflow.Phase2Enabled = false
	p1 := completedPhase1(t, svc)
	_, err := svc.StartPhase2(context.Background(), p1.ID, ProceedWithPrimary)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPhase2_SubmitAndComplete(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	p1 := completedPhase1(t, svc)
	ctx := context.Background()
	start, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)
	iv := start.Interview

	_, err = svc.SubmitPhase2Answer(ctx, iv.ID, 9, "out of range")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	answer := strings.Repeat("I would stop the line, talk to both supervisors and write down the agreed order ", 2)
	for slot := 1; slot <= 7; slot++ {
		a, err := svc.SubmitPhase2Answer(ctx, iv.ID, slot, answer)
		require.NoError(t, err)
		assert.Equal(t, start.Scenarios[slot-1].ID, a.QuestionID)
	}
	_, err = svc.CompletePhase2(ctx, iv.ID)
	assert.ErrorIs(t, err, domain.ErrIncomplete)

	_, err = svc.SubmitPhase2Answer(ctx, iv.ID, 8, answer)
	require.NoError(t, err)
	res, err := svc.CompletePhase2(ctx, iv.ID)
	require.NoError(t, err)
	assert.Len(t, res.CapabilityScore.Dimensions, 8)
	assert.Equal(t, ReadinessFor(res.CapabilityScore.Composite), res.CapabilityScore.Readiness)
	assert.Equal(t, domain.ClassTeamLead, res.DeploymentPacket.CommandClass)
	assert.Len(t, res.DeploymentPacket.Strengths, 2)

	stored, err := svc.Answers.GetInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewCompleted, stored.Status)
	assert.NotEmpty(t, stored.CapabilityProfile)

	again, err := svc.CompletePhase2(ctx, iv.ID)
	require.NoError(t, err)
	assert.True(t, again.ProfilePreserved)
	assert.Equal(t, res.DeploymentPacket.Composite, again.DeploymentPacket.Composite)
}

func TestCompletePhase2_FailClosed(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	p1 := completedPhase1(t, svc)
	ctx := context.Background()
	start, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)
	for slot := 1; slot <= 8; slot++ {
		_, err := svc.SubmitPhase2Answer(ctx, start.Interview.ID, slot, "answer text")
		require.NoError(t, err)
	}

	svc.Scorer = brokenScorer{}
	_, err = svc.CompletePhase2(ctx, start.Interview.ID)
	assert.ErrorIs(t, err, domain.ErrScoringFailed)

	stored, err := svc.Answers.GetInterview(ctx, start.Interview.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewInProgress, stored.Status)
}

func TestParseResolution(t *testing.T) {
	c, err := ParseResolution("use_secondary")
	require.NoError(t, err)
	assert.Equal(t, UseSecondary, c)
	_, err = ParseResolution("maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func invitedPhase1(t *testing.T, svc *Service) (*invsvc.Service, *domain.Invitation, *domain.Interview) {
	t.Helper()
	ctx := context.Background()
	inv := &invsvc.Service{DB: svc.DB, Questions: svc.Questions, HashKey: []byte("k")}
	token, _, err := inv.Issue(ctx, invsvc.IssueInput{CandidateID: uuid.New(), Workflow: domain.KindAdaptive})
	require.NoError(t, err)
	started, iv, _, err := inv.Begin(ctx, token, "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, 1, iv.PhaseValue())
	_, err = svc.SubmitPhase1Answers(ctx, iv.ID, identityAnswers(12))
	require.NoError(t, err)
	return inv, started, iv
}

func invitationStatus(t *testing.T, svc *Service, id uuid.UUID) string {
	t.Helper()
	var stored domain.Invitation
	require.NoError(t, svc.DB.First(&stored, "id = ?", id).Error)
	return stored.Status
}

func TestInvitation_CompletedAfterPhase2(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	ctx := context.Background()
	_, inv, p1 := invitedPhase1(t, svc)

	_, err := svc.CompletePhase1(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationStarted, invitationStatus(t, svc, inv.ID))

	start, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)
	require.NotNil(t, start.Interview.InvitationID)
	for slot := 1; slot <= 8; slot++ {
		_, err := svc.SubmitPhase2Answer(ctx, start.Interview.ID, slot, "I would check the plan with the shift lead first")
		require.NoError(t, err)
	}
	_, err = svc.CompletePhase2(ctx, start.Interview.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCompleted, invitationStatus(t, svc, inv.ID))
}

func TestInvitation_CompletedAfterPhase1WhenPhase2Disabled(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	svc.Workflow.Phase2Enabled = false
	_, inv, p1 := invitedPhase1(t, svc)

	_, err := svc.CompletePhase1(context.Background(), p1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCompleted, invitationStatus(t, svc, inv.ID))
}

func TestStartPhase2_LostRaceReturnsExisting(t *testing.T) {
	svc := setupAdaptive(t, fixedClassifier{clearLead})
	p1 := completedPhase1(t, svc)
	ctx := context.Background()
	first, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)

	testutil.MissNextQuery(t, svc.DB, "parent_interview_id")
	second, err := svc.StartPhase2(ctx, p1.ID, ResolutionNone)
	require.NoError(t, err)
	assert.Equal(t, first.Interview.ID, second.Interview.ID)

	var n int64
	require.NoError(t, svc.DB.Model(&domain.Interview{}).Where("parent_interview_id = ?", p1.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
