package auth

import (
	"errors"
	"time"

	"aicompass/internal/domain"
)

// Reason distinguishes why access to an assessment was refused.
type Reason string

const (
	ReasonOwnerMismatch Reason = "owner_mismatch"
	ReasonCancelled     Reason = "assessment_cancelled"
	ReasonCompleted     Reason = "assessment_completed"
	ReasonExpired       Reason = "invite_expired"
)

var messages = map[Reason]string{
	ReasonOwnerMismatch: "Forbidden",
	ReasonCancelled:     "Assessment cancelled",
	ReasonCompleted:     "Assessment completed",
	ReasonExpired:       "Invite expired",
}

// ForbiddenError indicates the caller may not act on the assessment.
type ForbiddenError struct {
	Reason Reason
}

func (e ForbiddenError) Error() string {
	if msg, ok := messages[e.Reason]; ok {
		return msg
	}
	return "Forbidden"
}

func Forbidden(reason Reason) error {
	return ForbiddenError{Reason: reason}
}

// IsForbidden reports whether err is a ForbiddenError with the given reason.
func IsForbidden(err error, reason Reason) bool {
	var fe ForbiddenError
	return errors.As(err, &fe) && fe.Reason == reason
}

// CheckOwner allows only the owner recorded at creation.
func CheckOwner(a domain.Assessment, callerID string) error {
	if callerID == "" || a.OwnerID != callerID {
		return Forbidden(ReasonOwnerMismatch)
	}
	return nil
}

// CheckActive refuses writes once the assessment left the active state.
func CheckActive(a domain.Assessment) error {
	switch a.Status {
	case domain.StatusActive:
		return nil
	case domain.StatusCompleted:
		return Forbidden(ReasonCompleted)
	default:
		return Forbidden(ReasonCancelled)
	}
}

// CheckRespondent gates the invite channel: status first, then expiry.
func CheckRespondent(a domain.Assessment, now time.Time) error {
	if err := CheckActive(a); err != nil {
		return err
	}
	if !now.Before(a.InviteExpiresAt) {
		return Forbidden(ReasonExpired)
	}
	return nil
}
