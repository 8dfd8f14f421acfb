package scoring

import (
	"aicompass/internal/catalog"
	"aicompass/internal/domain"
)

// Maturity bands, from highest to lowest.
const (
	BandLeading    = "Leading"
	BandScaling    = "Scaling"
	BandDeveloping = "Developing"
	BandEmerging   = "Emerging"
)

// scale maps a 1-5 mean onto 0-100.
const scale = 20

// Band maps a composite score to its maturity band. Thresholds are inclusive.
func Band(score float64) string {
	switch {
	case score >= 80:
		return BandLeading
	case score >= 60:
		return BandScaling
	case score >= 40:
		return BandDeveloping
	default:
		return BandEmerging
	}
}

// Calculate aggregates recorded metric scores into pillar and composite scores.
// Only selected metrics with a recorded score contribute; pillars without any are not
// evaluated and are left out of the result.
func Calculate(b *catalog.Benchmark, selections []domain.Selection, scores domain.Scores) domain.ScoreSummary {
	selected := make(map[string]bool, len(selections))
	for _, s := range selections {
		if s.Selected {
			selected[s.MetricID] = true
		}
	}

	var (
		pillarScores  []domain.PillarScore
		pillarWeights []float64
	)
	for _, p := range b.Pillars {
		score := PillarScore(p, selected, scores)
		if score <= 0 {
			continue
		}
		pillarScores = append(pillarScores, domain.PillarScore{PillarID: p.ID, PillarName: p.Name, Score: score})
		pillarWeights = append(pillarWeights, p.Weight)
	}
	if pillarScores == nil {
		pillarScores = []domain.PillarScore{}
	}

	values := make([]float64, len(pillarScores))
	for i, ps := range pillarScores {
		values[i] = ps.Score
	}
	composite := weightedMean(values, pillarWeights)
	return domain.ScoreSummary{
		CompositeScore: composite,
		PillarScores:   pillarScores,
		MaturityBand:   Band(composite),
	}
}

// PillarScore returns the 0-100 score of p, or 0 when no selected metric has a score.
func PillarScore(p catalog.Pillar, selected map[string]bool, scores domain.Scores) float64 {
	var values, weights []float64
	for _, m := range p.Metrics {
		if !selected[m.ID] {
			continue
		}
		entry, ok := scores[m.ID]
		if !ok {
			continue
		}
		values = append(values, entry.Score)
		weights = append(weights, m.Weight)
	}
	if len(values) == 0 {
		return 0
	}
	return weightedMean(values, weights) * scale
}

// weightedMean normalizes weights to sum to 1, splitting equally when they sum to 0.
func weightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	var sum float64
	for i, v := range values {
		w := 1 / float64(len(values))
		if total > 0 {
			w = weights[i] / total
		}
		sum += v * w
	}
	return sum
}
