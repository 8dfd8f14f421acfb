package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"aicompass/internal/catalog"
	"aicompass/internal/domain"
	"aicompass/internal/events"
	"aicompass/internal/repo"
)

const DefaultInviteDays = 30

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Catalog    *catalog.Benchmark
	InviteDays int
	Now        func() time.Time
	NewID      func() string
	NewToken   func() string
	Logger     *zap.Logger
	Tracer     trace.Tracer

	locks *keyedMutex
}

func New(db *sql.DB, cat *catalog.Benchmark) Engine {
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{},
		Catalog:    cat,
		InviteDays: DefaultInviteDays,
		Now:        time.Now,
		NewID:      uuid.NewString,
		NewToken:   NewInviteToken,
		Logger:     zap.NewNop(),
		Tracer:     otel.Tracer("aicompass/engine"),
		locks:      newKeyedMutex(),
	}
}

// NewInviteToken returns 32 lowercase hex characters.
func NewInviteToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidationError reports a rejected input; no state was changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) newToken() string {
	if e.NewToken != nil {
		return e.NewToken()
	}
	return NewInviteToken()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) inviteDays() int {
	if e.InviteDays > 0 {
		return e.InviteDays
	}
	return DefaultInviteDays
}

func (e Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := e.Tracer
	if tracer == nil {
		tracer = otel.Tracer("aicompass/engine")
	}
	return tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type pendingEvent struct {
	Type    string
	Channel string
	ActorID string
	Payload events.EventPayload
}

// update read-modify-writes one record. The in-process lock serializes writers in this
// process and the version check in UpdateAssessmentTx rejects writers from other processes.
func (e Engine) update(ctx context.Context, id string, check func(domain.Assessment) error, apply func(*domain.Assessment) ([]pendingEvent, error)) (domain.Assessment, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assessment{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetAssessmentTx(ctx, tx, id)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := check(current); err != nil {
		return domain.Assessment{}, err
	}
	next := current.Clone()
	evts, err := apply(&next)
	if err != nil {
		return domain.Assessment{}, err
	}
	next.UpdatedAt = e.now()
	version, err := e.Repo.UpdateAssessmentTx(ctx, tx, next)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("update assessment: %w", err)
	}
	next.Version = version
	w := e.eventWriter()
	for _, evt := range evts {
		if err := w.Append(ctx, tx, evt.Type, next.ID, evt.Channel, evt.ActorID, evt.Payload); err != nil {
			return domain.Assessment{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Assessment{}, err
	}
	return next, nil
}
