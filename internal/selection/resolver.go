package selection

import (
	"fmt"

	"aicompass/internal/catalog"
	"aicompass/internal/domain"
)

// Answer is the option chosen for one qualification question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// UnknownAnswerError reports an answer that does not match the catalog.
type UnknownAnswerError struct {
	QuestionID string
	Value      string
}

func (e *UnknownAnswerError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("unknown qualification question %s", e.QuestionID)
	}
	return fmt.Sprintf("unknown option %s for qualification question %s", e.Value, e.QuestionID)
}

// RecommendedPillars returns the set of pillar ids recommended by answers.
func RecommendedPillars(b *catalog.Benchmark, answers []Answer) (map[string]bool, error) {
	pillars := map[string]bool{}
	for _, a := range answers {
		q, ok := b.QualificationQuestion(a.QuestionID)
		if !ok {
			return nil, &UnknownAnswerError{QuestionID: a.QuestionID}
		}
		// An empty value means the question was skipped.
		if a.Value == "" {
			continue
		}
		var found bool
		for _, opt := range q.Options {
			if opt.Value != a.Value {
				continue
			}
			found = true
			for _, pid := range opt.RecommendedPillars {
				pillars[pid] = true
			}
		}
		if !found {
			return nil, &UnknownAnswerError{QuestionID: a.QuestionID, Value: a.Value}
		}
	}
	return pillars, nil
}

// Resolve maps qualification answers to one selection per catalog metric, in catalog order.
func Resolve(b *catalog.Benchmark, answers []Answer) ([]domain.Selection, error) {
	pillars, err := RecommendedPillars(b, answers)
	if err != nil {
		return nil, err
	}
	return Expand(b, pillars), nil
}

// Expand marks every metric of the given pillars as selected.
func Expand(b *catalog.Benchmark, pillars map[string]bool) []domain.Selection {
	out := make([]domain.Selection, 0, b.MetricCount())
	for _, p := range b.Pillars {
		for _, m := range p.Metrics {
			out = append(out, domain.Selection{
				PillarID: p.ID,
				MetricID: m.ID,
				Selected: pillars[p.ID],
			})
		}
	}
	return out
}

// Validate checks that every selection names a catalog metric under its own pillar.
func Validate(b *catalog.Benchmark, selections []domain.Selection) error {
	seen := map[string]bool{}
	for i, s := range selections {
		ref, ok := b.Metric(s.MetricID)
		if !ok {
			return fmt.Errorf("selections[%d]: unknown metric %s", i, s.MetricID)
		}
		if ref.Pillar.ID != s.PillarID {
			return fmt.Errorf("selections[%d]: metric %s belongs to pillar %s, not %s", i, s.MetricID, ref.Pillar.ID, s.PillarID)
		}
		if seen[s.MetricID] {
			return fmt.Errorf("selections[%d]: duplicate metric %s", i, s.MetricID)
		}
		seen[s.MetricID] = true
	}
	return nil
}
