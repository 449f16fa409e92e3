package scoring

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic_NoAnswers(t *testing.T) {
	_, err := Heuristic{}.Score(context.Background(), Input{InterviewID: uuid.New()})
	assert.Error(t, err)
}

func TestHeuristic_LongerAnswersScoreHigher(t *testing.T) {
	short := AnswerSubstance("yes")
	long := AnswerSubstance(strings.Repeat("I planned the route and called the customer before leaving ", 6))
	assert.Greater(t, long, short)
	assert.LessOrEqual(t, long, 1.0)
	assert.Equal(t, 0.0, AnswerSubstance("   "))
}

func TestHeuristic_Overall(t *testing.T) {
	res, err := Heuristic{}.Score(context.Background(), Input{
		InterviewID: uuid.New(),
		Answers: []AnswerView{
			{Slot: 1, QuestionID: "q1", Text: "one two three"},
			{Slot: 2, QuestionID: "q2", Text: "one two three"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Scores, 2)
	assert.Equal(t, res.Scores["q1"], res.Overall)
}
