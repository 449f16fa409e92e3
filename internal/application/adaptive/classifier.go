package adaptive

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"talentgate-backend/internal/domain"
)

type ClassScore struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Classification is the phase-1 outcome. AlternativeClasses are ordered by
// confidence, highest first, and exclude CommandClass.
type Classification struct {
	CommandClass       string       `json:"commandClass"`
	Confidence         float64      `json:"confidence"`
	AlternativeClasses []ClassScore `json:"alternativeClasses"`
}

// Secondary returns the runner-up class, if any.
func (c *Classification) Secondary() (ClassScore, bool) {
	if len(c.AlternativeClasses) == 0 {
		return ClassScore{}, false
	}
	return c.AlternativeClasses[0], true
}

// Classifier maps extracted identity fields to a command class.
type Classifier interface {
	Classify(ctx context.Context, identity map[string]string) (*Classification, error)
}

// KeywordClassifier weighs role and skill vocabulary per class. Every class
// starts from the same prior so sparse identities produce low confidence.
type KeywordClassifier struct{}

const classPrior = 0.5

var classKeywords = map[string][]string{
	domain.ClassFieldOperator:       {"operator", "driver", "warehouse", "forklift", "machine", "technician", "installer", "site", "field", "production", "shift", "picker"},
	domain.ClassTeamLead:            {"lead", "leader", "supervisor", "foreman", "manager", "head", "team", "coach", "mentor"},
	domain.ClassTechnicalSpecialist: {"engineer", "developer", "specialist", "analyst", "electrician", "mechanic", "programming", "network", "data", "expert", "certified"},
	domain.ClassCoordinator:         {"coordinator", "planner", "dispatcher", "scheduler", "logistics", "administrator", "planning", "organise", "organize", "office"},
	domain.ClassCustomerFacing:      {"customer", "sales", "service", "support", "client", "retail", "cashier", "reception", "hospitality", "call"},
}

// fields that carry class vocabulary, with their weight
var classifiedFields = map[string]float64{
	"current_role":         2,
	"primary_skills":       1.5,
	"industry":             1,
	"preferred_work_style": 1,
	"career_goal":          0.5,
}

func (KeywordClassifier) Classify(ctx context.Context, identity map[string]string) (*Classification, error) {
	scores := make(map[string]float64, len(domain.CommandClasses))
	for _, c := range domain.CommandClasses {
		scores[c] = classPrior
	}
	for field, weight := range classifiedFields {
		words := tokenize(identity[field])
		for class, kws := range classKeywords {
			for _, kw := range kws {
				if _, ok := words[kw]; ok {
					scores[class] += weight
				}
			}
		}
	}
	if n := leadingInt(identity["team_size_managed"]); n >= 3 {
		scores[domain.ClassTeamLead] += 2
	}
	return rank(scores), nil
}

// rank normalizes scores into confidences and orders them; equal scores keep
// CommandClasses order.
func rank(scores map[string]float64) *Classification {
	total := 0.0
	for _, v := range scores {
		total += v
	}
	ranked := make([]ClassScore, 0, len(domain.CommandClasses))
	for _, c := range domain.CommandClasses {
		conf := 0.0
		if total > 0 {
			conf = math.Round(scores[c]/total*100) / 100
		}
		ranked = append(ranked, ClassScore{Class: c, Confidence: conf})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })
	return &Classification{
		CommandClass:       ranked[0].Class,
		Confidence:         ranked[0].Confidence,
		AlternativeClasses: ranked[1:],
	}
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
