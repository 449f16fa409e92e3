package adaptive

import (
	"context"
	"fmt"
	"math"
	"sort"

	"talentgate-backend/internal/application/scoring"
)

const (
	ReadinessReady            = "READY"
	ReadinessReadyWithSupport = "READY_WITH_SUPPORT"
	ReadinessDeveloping       = "DEVELOPING"
	ReadinessNotReady         = "NOT_READY"
)

// ScenarioAnswer is a phase-2 answer with the dimension its scenario measures.
type ScenarioAnswer struct {
	Slot       int    `json:"slot"`
	QuestionID string `json:"questionId"`
	Dimension  string `json:"dimension"`
	Text       string `json:"text"`
}

type CapabilityScore struct {
	Dimensions map[string]float64 `json:"dimensions"`
	Composite  float64            `json:"composite"`
	Readiness  string             `json:"readiness"`
}

// DeploymentPacket is the phase-2 hand-off stored on the interview.
type DeploymentPacket struct {
	CandidateID      string             `json:"candidateId"`
	InterviewID      string             `json:"interviewId"`
	CommandClass     string             `json:"commandClass"`
	Readiness        string             `json:"readiness"`
	Composite        float64            `json:"composite"`
	Dimensions       map[string]float64 `json:"dimensions"`
	Strengths        []string           `json:"strengths"`
	DevelopmentAreas []string           `json:"developmentAreas"`
}

type CapabilityScorer interface {
	Score(ctx context.Context, commandClass string, answers []ScenarioAnswer) (*CapabilityScore, error)
}

// HeuristicCapabilityScorer averages answer substance per dimension.
type HeuristicCapabilityScorer struct{}

func (HeuristicCapabilityScorer) Score(ctx context.Context, commandClass string, answers []ScenarioAnswer) (*CapabilityScore, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("capability: no answers for class %s", commandClass)
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, a := range answers {
		sums[a.Dimension] += scoring.AnswerSubstance(a.Text)
		counts[a.Dimension]++
	}
	dims := make(map[string]float64, len(sums))
	total := 0.0
	for d, s := range sums {
		dims[d] = round2(s / float64(counts[d]))
		total += dims[d]
	}
	composite := round2(total / float64(len(dims)))
	return &CapabilityScore{Dimensions: dims, Composite: composite, Readiness: ReadinessFor(composite)}, nil
}

// ReadinessFor maps a composite score in [0,1] to a readiness level.
func ReadinessFor(composite float64) string {
	switch {
	case composite >= 0.75:
		return ReadinessReady
	case composite >= 0.6:
		return ReadinessReadyWithSupport
	case composite >= 0.4:
		return ReadinessDeveloping
	}
	return ReadinessNotReady
}

// buildPacket lists the top and bottom two dimensions as strengths and
// development areas.
func buildPacket(candidateID, interviewID, class string, cs *CapabilityScore) *DeploymentPacket {
	type kv struct {
		k string
		v float64
	}
	list := make([]kv, 0, len(cs.Dimensions))
	for k, v := range cs.Dimensions {
		list = append(list, kv{k, v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].v != list[j].v {
			return list[i].v > list[j].v
		}
		return list[i].k < list[j].k
	})
	n := 2
	if len(list) < 2*n {
		n = len(list) / 2
	}
	strengths := make([]string, 0, n)
	development := make([]string, 0, n)
	for i := 0; i < n; i++ {
		strengths = append(strengths, list[i].k)
		development = append(development, list[len(list)-1-i].k)
	}
	return &DeploymentPacket{
		CandidateID:      candidateID,
		InterviewID:      interviewID,
		CommandClass:     class,
		Readiness:        cs.Readiness,
		Composite:        cs.Composite,
		Dimensions:       cs.Dimensions,
		Strengths:        strengths,
		DevelopmentAreas: development,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
