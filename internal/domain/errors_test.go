package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	verr := Invalid("duration", "must be a multiple of %d minutes", 30)
	assert.True(t, errors.Is(verr, ErrValidation))
	assert.Equal(t, "duration: must be a multiple of 30 minutes", verr.Error())

	var target *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", verr), &target))
	assert.Equal(t, "duration", target.Field)

	terr := &TransitionError{Entity: "booking", ID: "b1", From: "CANCELLED", To: "CONFIRMED"}
	assert.True(t, errors.Is(terr, ErrInvalidTransition))
	assert.Contains(t, terr.Error(), "CANCELLED")
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Invalid("x", "bad"), "VALIDATION_ERROR"},
		{fmt.Errorf("%w: 2026-01-01", ErrOutOfWindow), "OUT_OF_WINDOW"},
		{ErrSlotUnavailable, "SLOT_UNAVAILABLE"},
		{fmt.Errorf("%w: SUMMER", ErrCouponInvalid), "COUPON_INVALID"},
		{&TransitionError{}, "INVALID_TRANSITION"},
		{ErrModificationWindowClosed, "MODIFICATION_WINDOW_CLOSED"},
		{fmt.Errorf("booking: %w", ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("failed to get booking: %w: %w", ErrTransient, errors.New("database is locked")), "TRANSIENT"},
		{errors.New("disk full"), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err))
	}
}
