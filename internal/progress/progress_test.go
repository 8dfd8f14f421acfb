package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicompass/internal/domain"
)

func TestRecordResponseCreatesDefaults(t *testing.T) {
	got, err := RecordResponse(nil, "m1", "p1", 1, 4, 3)
	require.NoError(t, err)
	entry := got["m1"]
	assert.Equal(t, "p1", entry.PillarID)
	assert.Equal(t, []int{1, 4, 1}, entry.Responses)
	assert.InDelta(t, 2.0, entry.Score, 1e-9)
	assert.False(t, entry.Completed)
}

func TestRecordResponseOverwritesIndexOnly(t *testing.T) {
	scores := domain.Scores{"m1": {PillarID: "p1", Responses: []int{2, 3, 4}, Score: 3, Completed: true}}
	got, err := RecordResponse(scores, "m1", "p1", 0, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 4}, got["m1"].Responses)
	assert.InDelta(t, 4.0, got["m1"].Score, 1e-9)
	assert.True(t, got["m1"].Completed)
	// input is not mutated
	assert.Equal(t, []int{2, 3, 4}, scores["m1"].Responses)
}

func TestRecordResponseResizesVector(t *testing.T) {
	scores := domain.Scores{"m1": {PillarID: "p1", Responses: []int{5}}}
	got, err := RecordResponse(scores, "m1", "p1", 2, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1, 3}, got["m1"].Responses)

	scores = domain.Scores{"m1": {PillarID: "p1", Responses: []int{5, 5, 5, 5}}}
	got, err = RecordResponse(scores, "m1", "p1", 0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, got["m1"].Responses)
}

func TestRecordResponseRejectsOutOfRange(t *testing.T) {
	_, err := RecordResponse(nil, "m1", "p1", 3, 4, 3)
	assert.Error(t, err)
	_, err = RecordResponse(nil, "m1", "p1", -1, 4, 3)
	assert.Error(t, err)
	_, err = RecordResponse(nil, "m1", "p1", 0, 0, 3)
	assert.Error(t, err)
	_, err = RecordResponse(nil, "m1", "p1", 0, 6, 3)
	assert.Error(t, err)
	_, err = RecordResponse(nil, "m1", "p1", 0, 3, 0)
	assert.Error(t, err)
}

func TestMarkMetricComplete(t *testing.T) {
	_, err := MarkMetricComplete(domain.Scores{}, "m1")
	assert.True(t, errors.Is(err, ErrMetricNotFound))

	scores := domain.Scores{"m1": {PillarID: "p1", Responses: []int{1}, Score: 1}}
	got, err := MarkMetricComplete(scores, "m1")
	require.NoError(t, err)
	assert.True(t, got["m1"].Completed)
	assert.False(t, scores["m1"].Completed)
}

func TestDerive(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	selections := []domain.Selection{
		{PillarID: "p", MetricID: "a", Selected: true},
		{PillarID: "p", MetricID: "b", Selected: true},
		{PillarID: "p", MetricID: "c", Selected: true},
		{PillarID: "q", MetricID: "d", Selected: false},
	}
	scores := domain.Scores{
		"a": {PillarID: "p", Responses: []int{1}},
		"d": {PillarID: "q", Responses: []int{5}, Completed: true},
	}
	got := Derive(selections, scores, now)
	assert.Equal(t, domain.Progress{CompletedMetrics: 1, TotalMetrics: 3, Percent: 33, UpdatedAt: now}, got)

	// idempotent
	assert.Equal(t, got, Derive(selections, scores, now))

	empty := Derive(nil, scores, now)
	assert.Equal(t, 0, empty.Percent)
	assert.Equal(t, 0, empty.TotalMetrics)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(3, 3))
	assert.Equal(t, 100, Percent(5, 3))
	assert.Equal(t, 50, Percent(1, 2))
}

func TestValidateScore(t *testing.T) {
	require.NoError(t, ValidateScore("m", domain.MetricScore{Responses: []int{1, 5, 3}}, 3))
	assert.Error(t, ValidateScore("m", domain.MetricScore{Responses: []int{1, 5}}, 3))
	assert.Error(t, ValidateScore("m", domain.MetricScore{Responses: []int{1, 6, 3}}, 3))
	assert.Error(t, ValidateScore("m", domain.MetricScore{Responses: []int{0, 2, 3}}, 3))
}
