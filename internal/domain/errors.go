package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation               = errors.New("validation error")
	ErrOutOfWindow              = errors.New("date is outside the booking window")
	ErrSlotUnavailable          = errors.New("slot unavailable")
	ErrCapacityExceeded         = errors.New("capacity exceeded")
	ErrCouponInvalid            = errors.New("coupon invalid")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrModificationWindowClosed = errors.New("modification window closed")
	ErrNotFound                 = errors.New("not found")
	ErrConcurrentModification   = errors.New("concurrent modification")
	ErrForbidden                = errors.New("forbidden")

	// ErrTransient marks storage and settings I/O failures; callers may retry with the same idempotency key.
	ErrTransient = errors.New("transient storage error")
)

// ValidationError is malformed caller input; it is surfaced verbatim.
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

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError is a rejected state machine move.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrOutOfWindow):
		return "OUT_OF_WINDOW"
	case errors.Is(err, ErrSlotUnavailable):
		return "SLOT_UNAVAILABLE"
	case errors.Is(err, ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, ErrCouponInvalid):
		return "COUPON_INVALID"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrModificationWindowClosed):
		return "MODIFICATION_WINDOW_CLOSED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrTransient):
		return "TRANSIENT"
	default:
		return "INTERNAL"
	}
}
