package engine

import (
	"context"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"aicompass/internal/domain"
	"aicompass/internal/engine/auth"
	"aicompass/internal/events"
	"aicompass/internal/progress"
	"aicompass/internal/scoring"
	"aicompass/internal/selection"
	"aicompass/internal/telemetry"
)

// InvitePatch is a respondent patch. Nil fields are left unchanged; slices and maps replace the stored value.
type InvitePatch struct {
	Status          *string
	CompanyName     *string
	CompanyIndustry *string
	CompanySize     *string
	ExecProfile     *domain.ExecProfile
	Selections      *[]domain.Selection
	Scores          *domain.Scores
	// Progress is checked for shape only; stored progress is always derived.
	Progress *domain.Progress
}

// ResponseInput records one answer.
type ResponseInput struct {
	MetricID      string
	QuestionIndex int
	Value         int
}

// inviteRecord resolves a token and applies the respondent guards.
func (e Engine) inviteRecord(ctx context.Context, token string) (domain.Assessment, error) {
	a, err := e.Repo.GetAssessmentByToken(ctx, token)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := auth.CheckRespondent(a, e.now()); err != nil {
		e.logger().Debug("invite access rejected",
			zap.String("token", telemetry.RedactToken(token)),
			zap.String("assessment_id", a.ID),
			zap.Error(err))
		return domain.Assessment{}, err
	}
	return a, nil
}

func (e Engine) respondentCheck(cur domain.Assessment) error {
	return auth.CheckRespondent(cur, e.now())
}

// respondentUpdate runs apply under the respondent guards and re-derives progress afterwards.
func (e Engine) respondentUpdate(ctx context.Context, token string, apply func(*domain.Assessment) ([]pendingEvent, error)) (domain.Assessment, error) {
	a, err := e.inviteRecord(ctx, token)
	if err != nil {
		return domain.Assessment{}, err
	}
	return e.update(ctx, a.ID, e.respondentCheck, func(next *domain.Assessment) ([]pendingEvent, error) {
		evts, err := apply(next)
		if err != nil {
			return nil, err
		}
		p := progress.Derive(next.Selections, next.Scores, e.now())
		next.Progress = &p
		return evts, nil
	})
}

// GetInvite returns the respondent projection of the assessment behind token.
func (e Engine) GetInvite(ctx context.Context, token string) (snap domain.InviteSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "GetInvite")
	defer func() { endSpan(span, err) }()
	a, err := e.inviteRecord(ctx, token)
	if err != nil {
		return domain.InviteSnapshot{}, err
	}
	return a.Snapshot(), nil
}

// PatchInvite applies a respondent patch. The only status a respondent may set is completed.
func (e Engine) PatchInvite(ctx context.Context, token string, patch InvitePatch) (snap domain.InviteSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "PatchInvite")
	defer func() { endSpan(span, err) }()

	complete := patch.Status != nil
	a, err := e.respondentUpdate(ctx, token, func(next *domain.Assessment) ([]pendingEvent, error) {
		scores, err := e.validatePatch(patch)
		if err != nil {
			return nil, err
		}
		var fields []string
		if patch.CompanyName != nil {
			next.CompanyName = strings.TrimSpace(*patch.CompanyName)
			fields = append(fields, "company_name")
		}
		if patch.CompanyIndustry != nil {
			next.CompanyIndustry = strings.TrimSpace(*patch.CompanyIndustry)
			fields = append(fields, "company_industry")
		}
		if patch.CompanySize != nil {
			next.CompanySize = strings.TrimSpace(*patch.CompanySize)
			fields = append(fields, "company_size")
		}
		if patch.ExecProfile != nil {
			p := *patch.ExecProfile
			p.Email = strings.TrimSpace(p.Email)
			next.ExecProfile = &p
			fields = append(fields, "exec_profile")
		}
		if patch.Selections != nil {
			next.Selections = append([]domain.Selection{}, (*patch.Selections)...)
			fields = append(fields, "selections")
		}
		if patch.Scores != nil {
			next.Scores = scores
			fields = append(fields, "scores")
		}
		evts := []pendingEvent{{Type: events.InviteUpdated, Channel: events.ChannelRespondent, Payload: events.EventPayload{"fields": fields}}}
		if complete {
			next.Status = domain.StatusCompleted
			evts = append(evts, pendingEvent{Type: events.AssessmentCompleted, Channel: events.ChannelRespondent})
		}
		return evts, nil
	})
	if err != nil {
		return domain.InviteSnapshot{}, err
	}
	if complete {
		e.logger().Info("assessment status changed",
			zap.String("assessment_id", a.ID),
			zap.String("status", string(a.Status)),
			zap.String("channel", events.ChannelRespondent))
	}
	return a.Snapshot(), nil
}

// Qualify replaces the selections with the pillars recommended by the answers.
func (e Engine) Qualify(ctx context.Context, token string, answers []selection.Answer) (snap domain.InviteSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "Qualify", attribute.Int("answers", len(answers)))
	defer func() { endSpan(span, err) }()

	a, err := e.respondentUpdate(ctx, token, func(next *domain.Assessment) ([]pendingEvent, error) {
		selections, err := selection.Resolve(e.Catalog, answers)
		if err != nil {
			return nil, invalid("answers", "%v", err)
		}
		next.Selections = selections
		var pillars []string
		seen := map[string]bool{}
		for _, s := range selections {
			if s.Selected && !seen[s.PillarID] {
				seen[s.PillarID] = true
				pillars = append(pillars, s.PillarID)
			}
		}
		return []pendingEvent{{Type: events.InviteQualified, Channel: events.ChannelRespondent, Payload: events.EventPayload{
			"answers": answers,
			"pillars": pillars,
		}}}, nil
	})
	if err != nil {
		return domain.InviteSnapshot{}, err
	}
	return a.Snapshot(), nil
}

// RecordResponse stores one answer, creating the metric entry with defaults when needed.
func (e Engine) RecordResponse(ctx context.Context, token string, in ResponseInput) (snap domain.InviteSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "RecordResponse", attribute.String("metric.id", in.MetricID))
	defer func() { endSpan(span, err) }()

	a, err := e.respondentUpdate(ctx, token, func(next *domain.Assessment) ([]pendingEvent, error) {
		ref, ok := e.Catalog.Metric(in.MetricID)
		if !ok {
			return nil, invalid("metric_id", "unknown metric %s", in.MetricID)
		}
		total := len(ref.Metric.Questions)
		if in.QuestionIndex < 0 || in.QuestionIndex >= total {
			return nil, invalid("question_index", "must be between 0 and %d", total-1)
		}
		if in.Value < progress.MinResponse || in.Value > progress.MaxResponse {
			return nil, invalid("value", "must be between %d and %d", progress.MinResponse, progress.MaxResponse)
		}
		scores, err := progress.RecordResponse(next.Scores, in.MetricID, ref.Pillar.ID, in.QuestionIndex, in.Value, total)
		if err != nil {
			return nil, invalid("value", "%v", err)
		}
		next.Scores = scores
		return []pendingEvent{{Type: events.ResponseRecorded, Channel: events.ChannelRespondent, Payload: events.EventPayload{
			"metric_id":      in.MetricID,
			"question_index": in.QuestionIndex,
			"value":          in.Value,
		}}}, nil
	})
	if err != nil {
		return domain.InviteSnapshot{}, err
	}
	return a.Snapshot(), nil
}

// CompleteMetric marks a metric as explicitly finished. A metric without answers gets the defaults first.
func (e Engine) CompleteMetric(ctx context.Context, token, metricID string) (snap domain.InviteSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "CompleteMetric", attribute.String("metric.id", metricID))
	defer func() { endSpan(span, err) }()

	a, err := e.respondentUpdate(ctx, token, func(next *domain.Assessment) ([]pendingEvent, error) {
		ref, ok := e.Catalog.Metric(metricID)
		if !ok {
			return nil, invalid("metric_id", "unknown metric %s", metricID)
		}
		scores := next.Scores
		if _, ok := scores[metricID]; !ok {
			var err error
			scores, err = progress.RecordResponse(scores, metricID, ref.Pillar.ID, 0, progress.DefaultResponse, len(ref.Metric.Questions))
			if err != nil {
				return nil, err
			}
		}
		scores, err := progress.MarkMetricComplete(scores, metricID)
		if err != nil {
			return nil, err
		}
		next.Scores = scores
		return []pendingEvent{{Type: events.MetricCompleted, Channel: events.ChannelRespondent, Payload: events.EventPayload{
			"metric_id": metricID,
			"score":     scores[metricID].Score,
		}}}, nil
	})
	if err != nil {
		return domain.InviteSnapshot{}, err
	}
	return a.Snapshot(), nil
}

// InviteResults scores the assessment behind token.
func (e Engine) InviteResults(ctx context.Context, token string) (summary domain.ScoreSummary, err error) {
	ctx, span := e.startSpan(ctx, "InviteResults")
	defer func() { endSpan(span, err) }()
	a, err := e.inviteRecord(ctx, token)
	if err != nil {
		return domain.ScoreSummary{}, err
	}
	return scoring.Calculate(e.Catalog, a.Selections, a.Scores), nil
}

// validatePatch checks a respondent patch once the channel guards have passed.
// It returns the normalized scores when the patch carries any.
func (e Engine) validatePatch(patch InvitePatch) (domain.Scores, error) {
	if patch.Status != nil && domain.Status(*patch.Status) != domain.StatusCompleted {
		return nil, invalid("status", "respondent may only set completed")
	}
	if patch.CompanyName != nil && strings.TrimSpace(*patch.CompanyName) == "" {
		return nil, invalid("company_name", "must not be empty")
	}
	if patch.ExecProfile != nil {
		if err := validateExecProfile(*patch.ExecProfile); err != nil {
			return nil, err
		}
	}
	if patch.Selections != nil {
		if err := selection.Validate(e.Catalog, *patch.Selections); err != nil {
			return nil, invalid("selections", "%v", err)
		}
	}
	if patch.Progress != nil {
		if err := validateProgress(*patch.Progress); err != nil {
			return nil, err
		}
	}
	if patch.Scores == nil {
		return nil, nil
	}
	return e.normalizeScores(*patch.Scores)
}

// normalizeScores checks each entry against the catalog and recomputes its score.
func (e Engine) normalizeScores(in domain.Scores) (domain.Scores, error) {
	out := make(domain.Scores, len(in))
	for metricID, entry := range in {
		ref, ok := e.Catalog.Metric(metricID)
		if !ok {
			return nil, invalid("scores", "unknown metric %s", metricID)
		}
		if entry.PillarID == "" {
			entry.PillarID = ref.Pillar.ID
		}
		if entry.PillarID != ref.Pillar.ID {
			return nil, invalid("scores", "metric %s belongs to pillar %s, not %s", metricID, ref.Pillar.ID, entry.PillarID)
		}
		if err := progress.ValidateScore(metricID, entry, len(ref.Metric.Questions)); err != nil {
			return nil, invalid("scores", "%v", err)
		}
		entry.Responses = append([]int(nil), entry.Responses...)
		entry.Score = progress.Mean(entry.Responses)
		out[metricID] = entry
	}
	return out, nil
}

// validateExecProfile accepts partial drafts; only a non-empty email is checked.
func validateExecProfile(p domain.ExecProfile) error {
	email := strings.TrimSpace(p.Email)
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" {
		return invalid("exec_profile.email", "must be a valid email address")
	}
	return nil
}

func validateProgress(p domain.Progress) error {
	if p.CompletedMetrics < 0 || p.TotalMetrics < 0 {
		return invalid("progress", "counts must not be negative")
	}
	if p.Percent < 0 || p.Percent > 100 {
		return invalid("progress.percent", "must be between 0 and 100")
	}
	return nil
}
