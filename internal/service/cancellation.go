package service

import (
	"context"
	"strings"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"
)

const (
	BandFree     = "free"
	BandPartial  = "partial"
	BandNone     = "none"
	BandOverride = "override"
	BandUnpaid   = "unpaid"
)

// CancelOptions describes who cancels and why. OverrideRefund is honoured for admins only.
type CancelOptions struct {
	Reason         models.CancellationReason `json:"reason"`
	Actor          models.Actor              `json:"-"`
	OverrideRefund bool                      `json:"override_refund"`
	RefundPercent  int                       `json:"refund_percent"`
	Note           string                    `json:"note,omitempty"`
}

// CancellationResolver maps a cancellation to a refund using the vessel type policy
// effective on the booking date.
type CancellationResolver struct {
	settings domain.SettingsProvider
}

func NewCancellationResolver(settings domain.SettingsProvider) *CancellationResolver {
	return &CancellationResolver{settings: settings}
}

func (r *CancellationResolver) Resolve(ctx context.Context, booking *models.Booking, cancelledAt time.Time, opts CancelOptions) (models.Refund, error) {
	day, err := time.Parse(models.DateLayout, booking.Date)
	if err != nil {
		return models.Refund{}, domain.Invalid("date", "booking %s has date %q", booking.ID, booking.Date)
	}
	policy, _, err := r.settings.GetPolicy(ctx, booking.ResourceType, day)
	if err != nil {
		return models.Refund{}, err
	}
	return ResolveRefund(policy.Cancellation, booking, cancelledAt, opts), nil
}

// ResolveRefund applies the refund bands. The amount is rounded down to the minor unit.
func ResolveRefund(policy models.CancellationPolicy, booking *models.Booking, cancelledAt time.Time, opts CancelOptions) models.Refund {
	refund := models.Refund{}
	switch {
	case opts.OverrideRefund && opts.Actor == models.ActorAdmin:
		refund.Percent = min(max(opts.RefundPercent, 0), 100)
		refund.Band = BandOverride
		refund.Overridden = true
	case opts.Reason.FullRefund():
		refund.Percent = 100
		refund.Band = strings.ToLower(string(opts.Reason))
	default:
		lead := booking.StartAt.Sub(cancelledAt)
		unit := policy.Unit.Duration()
		switch {
		case lead >= time.Duration(policy.FreeBefore)*unit:
			refund.Percent = 100
			refund.Band = BandFree
		case policy.PartialBefore > 0 && lead >= time.Duration(policy.PartialBefore)*unit:
			refund.Percent = policy.PartialPercent
			refund.Band = BandPartial
		default:
			refund.Band = BandNone
		}
	}

	refund.Amount = booking.Pricing.PayableAmount() * int64(refund.Percent) / 100
	return refund
}
