package service

import (
	"context"
	"testing"
	"time"

	"prichal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidBooking(start time.Time, final int64) *models.Booking {
	return &models.Booking{
		ID:              "b-1",
		ResourceType:    models.VesselSpeed,
		Date:            start.Format(models.DateLayout),
		StartAt:         start,
		DurationMinutes: 120,
		Status:          models.StatusConfirmed,
		PaymentStatus:   models.PaymentPaid,
		Pricing:         models.PricingBreakdown{FinalAmount: final},
	}
}

func TestResolveRefund(t *testing.T) {
	hours := models.CancellationPolicy{Unit: models.BandHours, FreeBefore: 24, PartialBefore: 12, PartialPercent: 50}
	start := at("2026-10-22", "10:00")
	booking := paidBooking(start, 5901)

	tests := []struct {
		name    string
		policy  models.CancellationPolicy
		before  time.Duration
		opts    CancelOptions
		percent int
		amount  int64
		band    string
	}{
		{"Free", hours, 30 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 100, 5901, BandFree},
		{"FreeAtBoundary", hours, 24 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 100, 5901, BandFree},
		{"Partial", hours, 13 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 50, 2950, BandPartial},
		{"PartialAtBoundary", hours, 12 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 50, 2950, BandPartial},
		{"None", hours, 10 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 0, 0, BandNone},
		{"AfterStart", hours, -time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 0, 0, BandNone},
		{"NoPartialBand", models.CancellationPolicy{Unit: models.BandHours, FreeBefore: 24}, 13 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 0, 0, BandNone},
		{"Weather", hours, time.Hour, CancelOptions{Reason: models.ReasonWeather, Actor: models.ActorAdmin}, 100, 5901, "weather"},
		{"Operator", hours, time.Hour, CancelOptions{Reason: models.ReasonOperator, Actor: models.ActorAdmin}, 100, 5901, "operator"},
		{"AdminOverride", hours, time.Hour, CancelOptions{Reason: models.ReasonAdmin, Actor: models.ActorAdmin, OverrideRefund: true, RefundPercent: 75}, 75, 4425, BandOverride},
		{"OverrideClamped", hours, time.Hour, CancelOptions{Actor: models.ActorAdmin, OverrideRefund: true, RefundPercent: 150}, 100, 5901, BandOverride},
		{"OverrideIgnoredForCustomer", hours, 10 * time.Hour, CancelOptions{Reason: models.ReasonCustomer, Actor: models.ActorCustomer, OverrideRefund: true, RefundPercent: 100}, 0, 0, BandNone},
		{"DayBands", models.CancellationPolicy{Unit: models.BandDays, FreeBefore: 7, PartialBefore: 3, PartialPercent: 50}, 4 * 24 * time.Hour, CancelOptions{Reason: models.ReasonCustomer}, 50, 2950, BandPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refund := ResolveRefund(tt.policy, booking, start.Add(-tt.before), tt.opts)
			assert.Equal(t, tt.percent, refund.Percent)
			assert.Equal(t, tt.amount, refund.Amount)
			assert.Equal(t, tt.band, refund.Band)
			assert.Equal(t, tt.band == BandOverride, refund.Overridden)
		})
	}
}

func TestResolveRefund_UsesPayableAmount(t *testing.T) {
	policy := models.CancellationPolicy{Unit: models.BandHours, FreeBefore: 24}
	start := at("2026-10-22", "10:00")
	booking := paidBooking(start, 5900)
	override := int64(4000)
	booking.Pricing.AdminOverrideAmount = &override

	refund := ResolveRefund(policy, booking, start.Add(-48*time.Hour), CancelOptions{Reason: models.ReasonCustomer})
	assert.Equal(t, int64(4000), refund.Amount)
}

func TestResolveRefund_MonotonicInLeadTime(t *testing.T) {
	policy := models.CancellationPolicy{Unit: models.BandHours, FreeBefore: 24, PartialBefore: 12, PartialPercent: 50}
	start := at("2026-10-22", "10:00")
	booking := paidBooking(start, 5900)

	prev := -1
	for lead := -2 * time.Hour; lead <= 48*time.Hour; lead += 30 * time.Minute {
		refund := ResolveRefund(policy, booking, start.Add(-lead), CancelOptions{Reason: models.ReasonCustomer})
		assert.GreaterOrEqual(t, refund.Percent, prev, "lead %s", lead)
		assert.LessOrEqual(t, refund.Amount, booking.Pricing.PayableAmount())
		prev = refund.Percent
	}
}

func TestCancellationResolver_UsesPolicyOfBookingType(t *testing.T) {
	e := newTestEngine(t)
	start := at("2026-10-30", "17:00")
	booking := paidBooking(start, 60000)
	booking.ResourceType = models.VesselParty

	// 5 дней до события: частичный возврат по дневной шкале
	refund, err := e.refunds.Resolve(context.Background(), booking, start.Add(-5*24*time.Hour), CancelOptions{Reason: models.ReasonCustomer})
	require.NoError(t, err)
	assert.Equal(t, 50, refund.Percent)
	assert.Equal(t, int64(30000), refund.Amount)
	assert.Equal(t, BandPartial, refund.Band)
}
