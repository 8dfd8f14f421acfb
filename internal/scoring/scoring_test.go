package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicompass/internal/catalog"
	"aicompass/internal/domain"
)

func testCatalog(t *testing.T) *catalog.Benchmark {
	t.Helper()
	b, err := catalog.FromYAML([]byte(`
version: "1"
pillars:
  - id: p1
    name: Pillar One
    weight: 1
    metrics:
      - {id: a, weight: 1, questions: [{id: q1}, {id: q2}]}
      - {id: b, weight: 3, questions: [{id: q1}, {id: q2}]}
  - id: p2
    name: Pillar Two
    weight: 0
    metrics:
      - {id: c, weight: 0, questions: [{id: q1}]}
      - {id: d, weight: 0, questions: [{id: q1}]}
  - id: p3
    name: Pillar Three
    weight: 1
    metrics:
      - {id: e, weight: 1, questions: [{id: q1}]}
`))
	require.NoError(t, err)
	return b
}

func selectAll(b *catalog.Benchmark) []domain.Selection {
	var out []domain.Selection
	for _, p := range b.Pillars {
		for _, m := range p.Metrics {
			out = append(out, domain.Selection{PillarID: p.ID, MetricID: m.ID, Selected: true})
		}
	}
	return out
}

func TestBandThresholdsAreInclusive(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, BandLeading},
		{80, BandLeading},
		{79.99, BandScaling},
		{60, BandScaling},
		{59.99, BandDeveloping},
		{40, BandDeveloping},
		{39.99, BandEmerging},
		{0, BandEmerging},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Band(tc.score), "score %v", tc.score)
	}
}

func TestWeightedPillarScore(t *testing.T) {
	b := testCatalog(t)
	scores := domain.Scores{
		"a": {PillarID: "p1", Responses: []int{3, 3}, Score: 3},
		"b": {PillarID: "p1", Responses: []int{5, 5}, Score: 5},
	}
	got := Calculate(b, selectAll(b), scores)
	require.Len(t, got.PillarScores, 1)
	assert.Equal(t, "p1", got.PillarScores[0].PillarID)
	assert.Equal(t, "Pillar One", got.PillarScores[0].PillarName)
	assert.InDelta(t, 90.0, got.PillarScores[0].Score, 1e-9)
	assert.InDelta(t, 90.0, got.CompositeScore, 1e-9)
	assert.Equal(t, BandLeading, got.MaturityBand)
}

func TestZeroWeightsSplitEqually(t *testing.T) {
	b := testCatalog(t)
	scores := domain.Scores{
		"c": {PillarID: "p2", Responses: []int{2}, Score: 2},
		"d": {PillarID: "p2", Responses: []int{4}, Score: 4},
	}
	got := Calculate(b, selectAll(b), scores)
	require.Len(t, got.PillarScores, 1)
	assert.InDelta(t, 60.0, got.PillarScores[0].Score, 1e-9)
	// the only evaluated pillar has weight 0, so the composite falls back to an equal split
	assert.InDelta(t, 60.0, got.CompositeScore, 1e-9)
	assert.Equal(t, BandScaling, got.MaturityBand)
}

func TestDeselectedMetricsAreIgnored(t *testing.T) {
	b := testCatalog(t)
	selections := selectAll(b)
	for i := range selections {
		if selections[i].MetricID == "b" {
			selections[i].Selected = false
		}
	}
	scores := domain.Scores{
		"a": {PillarID: "p1", Responses: []int{3, 3}, Score: 3},
		"b": {PillarID: "p1", Responses: []int{5, 5}, Score: 5},
	}
	got := Calculate(b, selections, scores)
	require.Len(t, got.PillarScores, 1)
	assert.InDelta(t, 60.0, got.PillarScores[0].Score, 1e-9)
}

func TestCompositeUsesPillarWeights(t *testing.T) {
	b := testCatalog(t)
	scores := domain.Scores{
		"a": {PillarID: "p1", Responses: []int{5, 5}, Score: 5},
		"e": {PillarID: "p3", Responses: []int{1}, Score: 1},
		"c": {PillarID: "p2", Responses: []int{5}, Score: 5},
	}
	got := Calculate(b, selectAll(b), scores)
	require.Len(t, got.PillarScores, 3)
	// p2 has weight 0 and contributes nothing; p1 and p3 split evenly.
	assert.InDelta(t, 60.0, got.CompositeScore, 1e-9)
	assert.GreaterOrEqual(t, got.CompositeScore, 0.0)
	assert.LessOrEqual(t, got.CompositeScore, 100.0)
}

func TestEmptyAssessment(t *testing.T) {
	b := testCatalog(t)
	got := Calculate(b, nil, nil)
	assert.Equal(t, 0.0, got.CompositeScore)
	assert.Empty(t, got.PillarScores)
	assert.NotNil(t, got.PillarScores)
	assert.Equal(t, BandEmerging, got.MaturityBand)

	got = Calculate(b, selectAll(b), domain.Scores{})
	assert.Equal(t, BandEmerging, got.MaturityBand)
}

func TestDefaultCatalogAllFives(t *testing.T) {
	b := catalog.Default()
	scores := domain.Scores{}
	for _, p := range b.Pillars {
		for _, m := range p.Metrics {
			scores[m.ID] = domain.MetricScore{PillarID: p.ID, Responses: []int{5, 5, 5}, Score: 5}
		}
	}
	got := Calculate(b, selectAll(b), scores)
	assert.Len(t, got.PillarScores, len(b.Pillars))
	assert.InDelta(t, 100.0, got.CompositeScore, 1e-9)
	assert.Equal(t, BandLeading, got.MaturityBand)
}
