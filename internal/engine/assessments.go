package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"aicompass/internal/domain"
	"aicompass/internal/engine/auth"
	"aicompass/internal/events"
	"aicompass/internal/scoring"
	"aicompass/internal/selection"
)

const maxInviteDays = 365

// CreateOptions are parameters for creating an assessment.
type CreateOptions struct {
	OwnerID         string
	CompanyName     string
	CompanyIndustry string
	CompanySize     string
	// InviteDays defaults to the engine's InviteDays when nil.
	InviteDays    *int
	Qualification []selection.Answer
}

// UpdateOptions is an owner patch. Nil fields are left unchanged.
type UpdateOptions struct {
	ID              string
	OwnerID         string
	Status          *string
	InviteDays      *int
	CompanyName     *string
	CompanyIndustry *string
	CompanySize     *string
}

func validateInviteDays(days int) error {
	if days < 1 || days > maxInviteDays {
		return invalid("invite_days", "must be between 1 and %d", maxInviteDays)
	}
	return nil
}

func (e Engine) CreateAssessment(ctx context.Context, opts CreateOptions) (a domain.Assessment, err error) {
	ctx, span := e.startSpan(ctx, "CreateAssessment", attribute.String("owner.id", opts.OwnerID))
	defer func() { endSpan(span, err) }()

	if opts.OwnerID == "" {
		return domain.Assessment{}, invalid("owner_id", "is required")
	}
	name := strings.TrimSpace(opts.CompanyName)
	if name == "" {
		return domain.Assessment{}, invalid("company_name", "is required")
	}
	days := e.inviteDays()
	if opts.InviteDays != nil {
		days = *opts.InviteDays
	}
	if err := validateInviteDays(days); err != nil {
		return domain.Assessment{}, err
	}
	selections, err := selection.Resolve(e.Catalog, opts.Qualification)
	if err != nil {
		return domain.Assessment{}, invalid("qualification", "%v", err)
	}

	now := e.now()
	a = domain.Assessment{
		ID:              e.newID(),
		OwnerID:         opts.OwnerID,
		InviteToken:     e.newToken(),
		InviteExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		Status:          domain.StatusActive,
		CompanyName:     name,
		CompanyIndustry: strings.TrimSpace(opts.CompanyIndustry),
		CompanySize:     strings.TrimSpace(opts.CompanySize),
		Selections:      selections,
		Scores:          domain.Scores{},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assessment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAssessmentTx(ctx, tx, a); err != nil {
		return domain.Assessment{}, fmt.Errorf("insert assessment: %w", err)
	}
	if err := e.eventWriter().Append(ctx, tx, events.AssessmentCreated, a.ID, events.ChannelOwner, opts.OwnerID, events.EventPayload{
		"company_name":      a.CompanyName,
		"invite_days":       days,
		"invite_expires_at": a.InviteExpiresAt,
		"qualified":         len(opts.Qualification) > 0,
	}); err != nil {
		return domain.Assessment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assessment{}, err
	}
	e.logger().Info("assessment created",
		zap.String("assessment_id", a.ID),
		zap.String("owner_id", a.OwnerID),
		zap.Time("invite_expires_at", a.InviteExpiresAt))
	return a, nil
}

// ListAssessments returns the owner's assessments, newest first.
func (e Engine) ListAssessments(ctx context.Context, ownerID string) (res []domain.Assessment, err error) {
	ctx, span := e.startSpan(ctx, "ListAssessments", attribute.String("owner.id", ownerID))
	defer func() { endSpan(span, err) }()
	if ownerID == "" {
		return nil, invalid("owner_id", "is required")
	}
	return e.Repo.ListAssessmentsByOwner(ctx, ownerID)
}

// GetAssessment loads a record for its owner in any status.
func (e Engine) GetAssessment(ctx context.Context, ownerID, id string) (a domain.Assessment, err error) {
	ctx, span := e.startSpan(ctx, "GetAssessment", attribute.String("assessment.id", id))
	defer func() { endSpan(span, err) }()
	return e.ownedAssessment(ctx, ownerID, id)
}

func (e Engine) ownedAssessment(ctx context.Context, ownerID, id string) (domain.Assessment, error) {
	a, err := e.Repo.GetAssessment(ctx, id)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := auth.CheckOwner(a, ownerID); err != nil {
		return domain.Assessment{}, err
	}
	return a, nil
}

// UpdateAssessment applies an owner patch. Only an active record may be changed.
func (e Engine) UpdateAssessment(ctx context.Context, opts UpdateOptions) (a domain.Assessment, err error) {
	ctx, span := e.startSpan(ctx, "UpdateAssessment", attribute.String("assessment.id", opts.ID))
	defer func() { endSpan(span, err) }()

	check := func(cur domain.Assessment) error {
		if err := auth.CheckOwner(cur, opts.OwnerID); err != nil {
			return err
		}
		return auth.CheckActive(cur)
	}
	var target domain.Status
	a, err = e.update(ctx, opts.ID, check, func(next *domain.Assessment) ([]pendingEvent, error) {
		if err := validateUpdate(opts); err != nil {
			return nil, err
		}
		if opts.Status != nil {
			target = domain.Status(*opts.Status)
		}
		changed := events.EventPayload{}
		if opts.CompanyName != nil {
			next.CompanyName = strings.TrimSpace(*opts.CompanyName)
			changed["company_name"] = next.CompanyName
		}
		if opts.CompanyIndustry != nil {
			next.CompanyIndustry = strings.TrimSpace(*opts.CompanyIndustry)
			changed["company_industry"] = next.CompanyIndustry
		}
		if opts.CompanySize != nil {
			next.CompanySize = strings.TrimSpace(*opts.CompanySize)
			changed["company_size"] = next.CompanySize
		}
		if opts.InviteDays != nil {
			next.InviteExpiresAt = e.now().Add(time.Duration(*opts.InviteDays) * 24 * time.Hour)
			changed["invite_expires_at"] = next.InviteExpiresAt
		}
		evts := []pendingEvent{{Type: events.AssessmentUpdated, Channel: events.ChannelOwner, ActorID: opts.OwnerID, Payload: changed}}
		switch target {
		case domain.StatusCancelled:
			next.Status = domain.StatusCancelled
			evts = append(evts, pendingEvent{Type: events.AssessmentCancelled, Channel: events.ChannelOwner, ActorID: opts.OwnerID})
		case domain.StatusCompleted:
			next.Status = domain.StatusCompleted
			evts = append(evts, pendingEvent{Type: events.AssessmentCompleted, Channel: events.ChannelOwner, ActorID: opts.OwnerID})
		}
		return evts, nil
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	if target == domain.StatusCancelled || target == domain.StatusCompleted {
		e.logger().Info("assessment status changed",
			zap.String("assessment_id", a.ID),
			zap.String("status", string(a.Status)),
			zap.String("channel", events.ChannelOwner))
	}
	return a, nil
}

// validateUpdate checks an owner patch once the owner and status guards have passed.
func validateUpdate(opts UpdateOptions) error {
	if opts.Status != nil && !domain.Status(*opts.Status).Valid() {
		return invalid("status", "must be one of active, cancelled, completed")
	}
	if opts.InviteDays != nil {
		if err := validateInviteDays(*opts.InviteDays); err != nil {
			return err
		}
	}
	if opts.CompanyName != nil && strings.TrimSpace(*opts.CompanyName) == "" {
		return invalid("company_name", "must not be empty")
	}
	return nil
}

// Results scores an assessment for its owner.
func (e Engine) Results(ctx context.Context, ownerID, id string) (summary domain.ScoreSummary, err error) {
	ctx, span := e.startSpan(ctx, "Results", attribute.String("assessment.id", id))
	defer func() { endSpan(span, err) }()
	a, err := e.ownedAssessment(ctx, ownerID, id)
	if err != nil {
		return domain.ScoreSummary{}, err
	}
	return scoring.Calculate(e.Catalog, a.Selections, a.Scores), nil
}

// ListEvents returns the audit log of an owned assessment.
func (e Engine) ListEvents(ctx context.Context, ownerID, id string, limit int, cursor int64) (res []domain.Event, err error) {
	ctx, span := e.startSpan(ctx, "ListEvents", attribute.String("assessment.id", id))
	defer func() { endSpan(span, err) }()
	if _, err := e.ownedAssessment(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return e.Repo.ListEvents(ctx, id, limit, cursor)
}
