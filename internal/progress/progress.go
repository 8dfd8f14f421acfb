package progress

import (
	"errors"
	"fmt"
	"math"
	"time"

	"aicompass/internal/domain"
)

const (
	MinResponse     = 1
	MaxResponse     = 5
	DefaultResponse = MinResponse
)

// ErrMetricNotFound is returned when a metric has no recorded entry.
var ErrMetricNotFound = errors.New("metric has no recorded responses")

// RecordResponse stores value at questionIndex for metricID and recomputes the metric score.
// A missing entry is created with every response defaulted to 1, and an existing vector is
// resized to totalQuestions.
func RecordResponse(scores domain.Scores, metricID, pillarID string, questionIndex, value, totalQuestions int) (domain.Scores, error) {
	if totalQuestions <= 0 {
		return nil, fmt.Errorf("metric %s has no questions", metricID)
	}
	if questionIndex < 0 || questionIndex >= totalQuestions {
		return nil, fmt.Errorf("question index %d out of range [0,%d)", questionIndex, totalQuestions)
	}
	if value < MinResponse || value > MaxResponse {
		return nil, fmt.Errorf("response %d out of range [%d,%d]", value, MinResponse, MaxResponse)
	}
	out := scores.Clone()
	if out == nil {
		out = domain.Scores{}
	}
	entry, ok := out[metricID]
	if !ok {
		entry = domain.MetricScore{PillarID: pillarID}
	}
	entry.PillarID = pillarID
	entry.Responses = resize(entry.Responses, totalQuestions)
	entry.Responses[questionIndex] = value
	entry.Score = Mean(entry.Responses)
	out[metricID] = entry
	return out, nil
}

// MarkMetricComplete flags metricID as explicitly completed by the respondent.
func MarkMetricComplete(scores domain.Scores, metricID string) (domain.Scores, error) {
	entry, ok := scores[metricID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, metricID)
	}
	out := scores.Clone()
	entry = out[metricID]
	entry.Completed = true
	out[metricID] = entry
	return out, nil
}

// Derive computes progress over the selected metrics. Any recorded entry for a selected
// metric counts as completed, whether or not it was explicitly marked complete.
func Derive(selections []domain.Selection, scores domain.Scores, now time.Time) domain.Progress {
	total, completed := 0, 0
	for _, s := range selections {
		if !s.Selected {
			continue
		}
		total++
		if _, ok := scores[s.MetricID]; ok {
			completed++
		}
	}
	return domain.Progress{
		CompletedMetrics: completed,
		TotalMetrics:     total,
		Percent:          Percent(completed, total),
		UpdatedAt:        now,
	}
}

// Percent returns round(min(100, 100*completed/total)), or 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(math.Min(100, 100*float64(completed)/float64(total))))
}

// Mean returns the arithmetic mean of responses, 0 for an empty vector.
func Mean(responses []int) float64 {
	if len(responses) == 0 {
		return 0
	}
	sum := 0
	for _, r := range responses {
		sum += r
	}
	return float64(sum) / float64(len(responses))
}

// ValidateScore checks a respondent-supplied entry against the metric's question count.
func ValidateScore(metricID string, s domain.MetricScore, totalQuestions int) error {
	if len(s.Responses) != totalQuestions {
		return fmt.Errorf("scores.%s: expected %d responses, got %d", metricID, totalQuestions, len(s.Responses))
	}
	for i, r := range s.Responses {
		if r < MinResponse || r > MaxResponse {
			return fmt.Errorf("scores.%s.responses[%d]: %d out of range [%d,%d]", metricID, i, r, MinResponse, MaxResponse)
		}
	}
	return nil
}

func resize(responses []int, n int) []int {
	out := make([]int, n)
	for i := range out {
		if i < len(responses) {
			out[i] = responses[i]
		} else {
			out[i] = DefaultResponse
		}
	}
	return out
}
