package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// AnswerView is what a scorer sees of one answer.
type AnswerView struct {
	Slot       int    `json:"slot"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

type Input struct {
	CandidateID uuid.UUID
	InterviewID uuid.UUID
	Answers     []AnswerView
}

// Result is the scored profile content.
type Result struct {
	Scores  map[string]float64 `json:"scores"`
	Overall float64            `json:"overall"`
	Summary string             `json:"summary"`
}

// Scorer turns answers into a profile. Implementations live outside this
// service in production; Heuristic is the built-in fallback.
type Scorer interface {
	Score(ctx context.Context, in Input) (*Result, error)
}

// Heuristic scores answers by substance: length up to a soft cap and lexical
// variety. It exists so the workflow runs end to end without the external
// scoring service.
type Heuristic struct{}

func (Heuristic) Score(ctx context.Context, in Input) (*Result, error) {
	if len(in.Answers) == 0 {
		return nil, fmt.Errorf("scoring: no answers for interview %s", in.InterviewID)
	}
	scores := make(map[string]float64, len(in.Answers))
	total := 0.0
	for _, a := range in.Answers {
		s := AnswerSubstance(a.Text)
		scores[a.QuestionID] = s
		total += s
	}
	overall := round2(total / float64(len(in.Answers)))
	return &Result{
		Scores:  scores,
		Overall: overall,
		Summary: fmt.Sprintf("%d answers scored, overall %.2f", len(in.Answers), overall),
	}, nil
}

// AnswerSubstance rates a free-text answer in [0,1].
func AnswerSubstance(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	uniq := make(map[string]struct{}, len(words))
	for _, w := range words {
		uniq[strings.Trim(w, ".,;:!?\"'()")] = struct{}{}
	}
	length := math.Min(float64(len(words))/60.0, 1)
	variety := float64(len(uniq)) / float64(len(words))
	return round2(0.7*length + 0.3*variety)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
