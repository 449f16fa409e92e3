package answers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"talentgate-backend/internal/application/scoring"
	"talentgate-backend/internal/domain"
	"talentgate-backend/internal/pkg/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type failingScorer struct{ calls int }

func (f *failingScorer) Score(ctx context.Context, in scoring.Input) (*scoring.Result, error) {
	f.calls++
	return nil, errors.New("scoring service down")
}

type countingScorer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingScorer) Score(ctx context.Context, in scoring.Input) (*scoring.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return scoring.Heuristic{}.Score(ctx, in)
}

func setupAnswers(t *testing.T, scorer scoring.Scorer) *Service {
	return &Service{DB: testutil.NewDB(t), Scorer: scorer}
}

func newInterview(t *testing.T, db *gorm.DB, required int) *domain.Interview {
	candidate := uuid.New()
	iv := &domain.Interview{
		CandidateID:   candidate,
		Kind:          domain.KindStandard,
		Status:        domain.InterviewInProgress,
		Language:      "en",
		QuestionSetID: "std-en-v1",
		RequiredCount: required,
		OpenKey:       domain.InterviewOpenKey(candidate, domain.KindStandard, nil),
	}
	require.NoError(t, db.Create(iv).Error)
	return iv
}

func answerAll(t *testing.T, svc *Service, iv *domain.Interview, n int) {
	for i := 1; i <= n; i++ {
		_, err := svc.SubmitAnswer(context.Background(), iv.ID, AnswerInput{
			Slot: i, QuestionID: questionID(i), Text: "I led the shift handover and kept the line running.",
		})
		require.NoError(t, err)
	}
}

func questionID(i int) string {
	return fmt.Sprintf("q-%d", i)
}

func TestSubmitAnswer_UpsertIsIdempotent(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	iv := newInterview(t, svc.DB, 3)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 1, QuestionID: "q-1", Text: "first"})
	require.NoError(t, err)
	second, err := svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 1, QuestionID: "q-1", Text: "second"})
	require.NoError(t, err)

	var rows []domain.Answer
	require.NoError(t, svc.DB.Where("interview_id = ?", iv.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Text)
	assert.Equal(t, rows[0].ID, second.ID)
}

func TestSubmitAnswer_RejectsQuestionAtAnotherSlot(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	iv := newInterview(t, svc.DB, 3)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 1, QuestionID: "q-1", Text: "x"})
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 2, QuestionID: "q-1", Text: "y"})
	assert.ErrorIs(t, err, domain.ErrDuplicateQuestion)
}

func TestSubmitAnswer_SlotBounds(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	iv := newInterview(t, svc.DB, 3)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 0, QuestionID: "q-1", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 4, QuestionID: "q-4", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	_, err = svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 1, QuestionID: " ", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSubmitAnswer_UnknownInterview(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	_, err := svc.SubmitAnswer(context.Background(), uuid.New(), AnswerInput{Slot: 1, QuestionID: "q-1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitBatch_StopsAtFirstError(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	iv := newInterview(t, svc.DB, 3)

	out, err := svc.SubmitBatch(context.Background(), iv.ID, []AnswerInput{
		{Slot: 1, QuestionID: "q-1", Text: "a"},
		{Slot: 2, QuestionID: "q-1", Text: "dup"},
		{Slot: 3, QuestionID: "q-3", Text: "c"},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateQuestion)
	assert.Len(t, out, 1)

	n, err := svc.CountAnswered(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestComplete_IncompleteThenExactlyOnce(t *testing.T) {
	scorer := &countingScorer{}
	svc := setupAnswers(t, scorer)
	iv := newInterview(t, svc.DB, 3)
	ctx := context.Background()

	answerAll(t, svc, iv, 2)
	_, err := svc.Complete(ctx, iv.ID, 3, CompleteOptions{Policy: FailOpen})
	require.ErrorIs(t, err, domain.ErrIncomplete)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"answered": 2, "required": 3}, de.Details)

	answerAll(t, svc, iv, 3)
	first, err := svc.Complete(ctx, iv.ID, 3, CompleteOptions{Policy: FailOpen})
	require.NoError(t, err)
	assert.False(t, first.ProfilePreserved)
	assert.False(t, first.ScoringDeferred)
	require.NotNil(t, first.Profile)
	assert.True(t, first.Profile.IsFinal)
	assert.Equal(t, domain.InterviewCompleted, first.Interview.Status)
	assert.Nil(t, first.Interview.OpenKey)

	again, err := svc.Complete(ctx, iv.ID, 3, CompleteOptions{Policy: FailOpen})
	require.NoError(t, err)
	assert.True(t, again.ProfilePreserved)
	assert.Equal(t, first.Profile.ID, again.Profile.ID)
	assert.Equal(t, 1, scorer.calls)

	_, err = svc.SubmitAnswer(ctx, iv.ID, AnswerInput{Slot: 1, QuestionID: "q-1", Text: "late edit"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestComplete_ConcurrentCallersScoreOnce(t *testing.T) {
	scorer := &countingScorer{}
	svc := setupAnswers(t, scorer)
	iv := newInterview(t, svc.DB, 2)
	answerAll(t, svc, iv, 2)

	var wg sync.WaitGroup
	results := make([]*CompletionResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Complete(context.Background(), iv.ID, 2, CompleteOptions{Policy: FailOpen})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	preserved := 0
	for _, r := range results {
		if r != nil && r.ProfilePreserved {
			preserved++
		}
	}
	assert.Equal(t, 3, preserved)
	assert.Equal(t, 1, scorer.calls)

	var n int64
	require.NoError(t, svc.DB.Model(&domain.Profile{}).Where("interview_id = ?", iv.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestComplete_FailOpenDefersScoring(t *testing.T) {
	svc := setupAnswers(t, &failingScorer{})
	iv := newInterview(t, svc.DB, 2)
	answerAll(t, svc, iv, 2)

	res, err := svc.Complete(context.Background(), iv.ID, 2, CompleteOptions{Policy: FailOpen})
	require.NoError(t, err)
	assert.True(t, res.ScoringDeferred)
	assert.Nil(t, res.Profile)
	assert.Equal(t, domain.InterviewCompleted, res.Interview.Status)

	_, err = svc.Complete(context.Background(), iv.ID, 2, CompleteOptions{Policy: FailOpen})
	assert.ErrorIs(t, err, domain.ErrConflict)

	svc.Scorer = scoring.Heuristic{}
	rescored, err := svc.Rescore(context.Background(), iv.ID)
	require.NoError(t, err)
	require.NotNil(t, rescored.Profile)
	assert.True(t, rescored.Profile.IsFinal)

	again, err := svc.Rescore(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.True(t, again.ProfilePreserved)
}

func TestComplete_FailClosedKeepsInterviewOpen(t *testing.T) {
	scorer := &failingScorer{}
	svc := setupAnswers(t, scorer)
	iv := newInterview(t, svc.DB, 2)
	answerAll(t, svc, iv, 2)

	_, err := svc.Complete(context.Background(), iv.ID, 2, CompleteOptions{Policy: FailClosed})
	assert.ErrorIs(t, err, domain.ErrScoringFailed)

	stored, err := svc.GetInterview(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewInProgress, stored.Status)
	assert.NotNil(t, stored.OpenKey)
}

func TestComplete_OnCompletedRunsInTransaction(t *testing.T) {
	svc := setupAnswers(t, scoring.Heuristic{})
	iv := newInterview(t, svc.DB, 1)
	answerAll(t, svc, iv, 1)

	_, err := svc.Complete(context.Background(), iv.ID, 1, CompleteOptions{
		Policy: FailOpen,
		OnCompleted: func(tx *gorm.DB, iv *domain.Interview) error {
			return domain.ErrConflict
		},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := svc.GetInterview(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InterviewInProgress, stored.Status)

	var n int64
	require.NoError(t, svc.DB.Model(&domain.Profile{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestComplete_CustomScoreFunc(t *testing.T) {
	svc := setupAnswers(t, nil)
	iv := newInterview(t, svc.DB, 1)
	answerAll(t, svc, iv, 1)

	res, err := svc.Complete(context.Background(), iv.ID, 1, CompleteOptions{
		Policy: FailClosed,
		Score: func(ctx context.Context, iv *domain.Interview, answers []domain.Answer) (*Outcome, error) {
			return &Outcome{Scores: map[string]int{"answers": len(answers)}, Summary: "custom"}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Profile.Summary)
	assert.JSONEq(t, `{"answers":1}`, string(res.Profile.Scores))
	assert.WithinDuration(t, time.Now(), *res.Interview.CompletedAt, time.Minute)
}
