package questionsets

import (
	"context"
	"fmt"
	"strings"

	"talentgate-backend/internal/domain"
)

// Question is one entry of a question set. FieldKey names the identity field a
// phase-1 answer feeds; Dimension names the capability a phase-2 scenario
// measures.
type Question struct {
	ID        string `json:"id"`
	Slot      int    `json:"slot"`
	Prompt    string `json:"prompt"`
	FieldKey  string `json:"field_key,omitempty"`
	Dimension string `json:"dimension,omitempty"`
	Required  bool   `json:"required"`
}

type QuestionSet struct {
	ID        string     `json:"id"`
	Workflow  string     `json:"workflow"`
	Phase     int        `json:"phase"`
	Locale    string     `json:"locale"`
	Questions []Question `json:"questions"`
}

// RequiredCount is the number of answers completion waits for.
func (qs *QuestionSet) RequiredCount() int {
	n := 0
	for _, q := range qs.Questions {
		if q.Required {
			n++
		}
	}
	return n
}

// BySlot returns the question bound to slot.
func (qs *QuestionSet) BySlot(slot int) (Question, bool) {
	for _, q := range qs.Questions {
		if q.Slot == slot {
			return q, true
		}
	}
	return Question{}, false
}

// ByID returns the question with the given id.
func (qs *QuestionSet) ByID(id string) (Question, bool) {
	for _, q := range qs.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Query selects a question set. Phase 0 means an unphased workflow.
type Query struct {
	Position string
	Locale   string
	Country  string
	Workflow string
	Phase    int
}

// Resolver returns the ordered question list for a phase.
type Resolver interface {
	Resolve(ctx context.Context, q Query) (*QuestionSet, error)
	ByID(ctx context.Context, id string) (*QuestionSet, error)
}

type entry struct {
	set      QuestionSet
	position string
	country  string
}

// Catalog is a static, read-only Resolver.
type Catalog struct {
	entries []entry
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: builtinEntries()}
}

// Resolve picks the most specific set for the query. Locale falls back from
// "de-AT" to "de" to "en".
func (c *Catalog) Resolve(ctx context.Context, q Query) (*QuestionSet, error) {
	workflow := q.Workflow
	if workflow == "" {
		workflow = domain.KindStandard
	}
	for _, loc := range localeChain(q.Locale) {
		var best *entry
		bestScore := -1
		for i := range c.entries {
			e := &c.entries[i]
			if e.set.Workflow != workflow || e.set.Phase != q.Phase || e.set.Locale != loc {
				continue
			}
			score := 0
			if e.position != "" {
				if !strings.EqualFold(e.position, q.Position) {
					continue
				}
				score += 2
			}
			if e.country != "" {
				if !strings.EqualFold(e.country, q.Country) {
					continue
				}
				score++
			}
			if score > bestScore {
				best, bestScore = e, score
			}
		}
		if best != nil {
			set := best.set
			set.Questions = append([]Question(nil), best.set.Questions...)
			return &set, nil
		}
	}
	return nil, domain.ErrNotFound.WithMessage(fmt.Sprintf("No question set for workflow %q phase %d", workflow, q.Phase))
}

// ByID returns a set by its id regardless of locale.
func (c *Catalog) ByID(ctx context.Context, id string) (*QuestionSet, error) {
	for i := range c.entries {
		if c.entries[i].set.ID == id {
			set := c.entries[i].set
			set.Questions = append([]Question(nil), c.entries[i].set.Questions...)
			return &set, nil
		}
	}
	return nil, domain.ErrNotFound.WithMessage("Question set not found")
}

func localeChain(locale string) []string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	chain := []string{}
	if locale != "" {
		chain = append(chain, locale)
		if i := strings.IndexAny(locale, "-_"); i > 0 {
			chain = append(chain, locale[:i])
		}
	}
	if len(chain) == 0 || chain[len(chain)-1] != "en" {
		chain = append(chain, "en")
	}
	return chain
}
