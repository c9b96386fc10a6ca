package service

import (
	"context"
	"testing"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func partyInquiry(date, slot string) SubmitInquiryRequest {
	return SubmitInquiryRequest{
		CustomerName:   "Anita",
		CustomerPhone:  "+919811111111",
		ResourceID:     "party-1",
		EventType:      "birthday",
		Date:           date,
		SlotLabel:      slot,
		NumberOfGuests: 30,
		AddOns:         []models.SelectedAddOn{{AddOnID: "dj"}},
	}
}

// acceptedInquiry walks an inquiry to ACCEPTED with the given quote.
func acceptedInquiry(t *testing.T, e *testEngine, req SubmitInquiryRequest, quote int64) *models.Inquiry {
	t.Helper()
	ctx := context.Background()
	inq, err := e.inquiries.SubmitInquiry(ctx, req)
	require.NoError(t, err)
	_, err = e.inquiries.QuoteInquiry(ctx, inq.ID, quote, "all inclusive", models.ActorAdmin)
	require.NoError(t, err)
	inq, err = e.inquiries.AcceptInquiry(ctx, inq.ID)
	require.NoError(t, err)
	return inq
}

func TestInquiryService_FullFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	inq, err := e.inquiries.SubmitInquiry(ctx, partyInquiry("2026-10-30", "Sunset"))
	require.NoError(t, err)
	assert.Equal(t, "INQ-2026-000001", inq.InquiryNumber)
	assert.Equal(t, models.InquiryPending, inq.Status)
	require.Len(t, inq.AddOns, 1)
	assert.Equal(t, "DJ", inq.AddOns[0].Name)
	e.bus.AssertCalled(t, "PublishJSON", events.EventInquirySubmitted, mock.Anything)

	_, err = e.inquiries.QuoteInquiry(ctx, inq.ID, 60000, "", models.ActorCustomer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	quoted, err := e.inquiries.QuoteInquiry(ctx, inq.ID, 60000, "DJ and decor", models.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryQuoted, quoted.Status)
	require.NotNil(t, quoted.QuotedAmount)
	assert.Equal(t, int64(60000), *quoted.QuotedAmount)

	_, _, err = e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{Actor: models.ActorAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	accepted, err := e.inquiries.AcceptInquiry(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	_, _, err = e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{Actor: models.ActorCustomer})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	converted, booking, err := e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{Actor: models.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.InquiryConverted, converted.Status)
	assert.Equal(t, booking.ID, converted.ConvertedBookingID)
	assert.NotNil(t, converted.ConvertedAt)

	assert.Equal(t, "BK-2026-000001", booking.BookingNumber)
	assert.Equal(t, inq.ID, booking.InquiryID)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, models.PaymentAtVenue, booking.PaymentMode)
	assert.Equal(t, 30, booking.NumberOfGuests)
	assert.Equal(t, "Sunset", booking.SlotLabel)
	assert.Equal(t, models.ActorAdmin, booking.CreatedBy)
	// (50000 + 5000) * 1.18
	assert.Equal(t, int64(64900), booking.Pricing.FinalAmount)
	require.NotNil(t, booking.Pricing.AdminOverrideAmount)
	assert.Equal(t, int64(60000), booking.Pricing.PayableAmount())

	e.bus.AssertCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)
	e.bus.AssertCalled(t, "PublishJSON", events.EventInquiryConverted, mock.Anything)

	_, _, err = e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{Actor: models.ActorAdmin})
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Reason, booking.ID)
}

func TestInquiryService_SubmitValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*SubmitInquiryRequest)
		want   error
	}{
		{"MissingEventType", func(r *SubmitInquiryRequest) { r.EventType = "" }, domain.ErrValidation},
		{"SpeedBoat", func(r *SubmitInquiryRequest) { r.ResourceID = "speed-1" }, domain.ErrValidation},
		{"UnknownSlot", func(r *SubmitInquiryRequest) { r.SlotLabel = "Brunch" }, domain.ErrValidation},
		{"TooFewGuests", func(r *SubmitInquiryRequest) { r.NumberOfGuests = 5 }, domain.ErrValidation},
		{"UnknownAddOn", func(r *SubmitInquiryRequest) { r.AddOns = []models.SelectedAddOn{{AddOnID: "photo"}} }, domain.ErrValidation},
		{"OutOfWindow", func(r *SubmitInquiryRequest) { r.Date = "2027-03-01" }, domain.ErrOutOfWindow},
		{"ClosedDay", func(r *SubmitInquiryRequest) { r.Date = "2026-10-25" }, domain.ErrSlotUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := partyInquiry("2026-10-30", "Sunset")
			tt.modify(&req)
			_, err := e.inquiries.SubmitInquiry(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInquiryService_RejectAndDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	inq, err := e.inquiries.SubmitInquiry(ctx, partyInquiry("2026-10-30", "Lunch"))
	require.NoError(t, err)

	rejected, err := e.inquiries.RejectInquiry(ctx, inq.ID, "fully booked season")
	require.NoError(t, err)
	assert.Equal(t, models.InquiryRejected, rejected.Status)
	assert.Equal(t, "fully booked season", rejected.RejectionReason)

	_, err = e.inquiries.AcceptInquiry(ctx, inq.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.ErrorIs(t, e.inquiries.DeleteInquiry(ctx, inq.ID, models.ActorCustomer), domain.ErrForbidden)
	require.NoError(t, e.inquiries.DeleteInquiry(ctx, inq.ID, models.ActorAdmin))
	_, err = e.inquiries.GetInquiry(ctx, inq.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInquiryService_ConvertAlternativeSlot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	inq := acceptedInquiry(t, e, partyInquiry("2026-10-30", "Sunset"), 64900)

	converted, booking, err := e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{
		Date:        "2026-10-31",
		SlotLabel:   "night",
		PaymentMode: models.PaymentOnline,
		Actor:       models.ActorAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-31", converted.Date)
	assert.Equal(t, "Night", converted.SlotLabel)
	assert.Equal(t, "2026-10-31", booking.Date)
	assert.True(t, booking.StartAt.Equal(at("2026-10-31", "20:30")))
	assert.Equal(t, models.StatusPendingPayment, booking.Status)
	// Цена совпала с расчетной, ручная сумма не нужна
	assert.Nil(t, booking.Pricing.AdminOverrideAmount)
}

func TestInquiryService_ConvertUnavailableSlot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	inq := acceptedInquiry(t, e, partyInquiry("2026-10-30", "Lunch"), 55000)

	_, err := e.bookings.CreateBooking(ctx, CreateBookingRequest{
		CustomerName:  "Walk-in",
		CustomerPhone: "+919822222222",
		ResourceID:    "party-1",
		Slot:          SlotSelection{Date: "2026-10-30", SlotLabel: "Lunch"},
		Guests:        20,
		PaymentMode:   models.PaymentAtVenue,
	})
	require.NoError(t, err)

	_, _, err = e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{Actor: models.ActorAdmin})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	still, err := e.inquiries.GetInquiry(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryAccepted, still.Status)
	assert.Empty(t, still.ConvertedBookingID)

	bookings, err := e.bookings.ListBookings(ctx, models.BookingFilter{ResourceID: "party-1"})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	// Другой слот того же дня свободен
	_, booking, err := e.inquiries.ConvertInquiry(ctx, inq.ID, ConvertRequest{SlotLabel: "Sunset", Actor: models.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, "Sunset", booking.SlotLabel)
}

func TestInquiryService_ConvertIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	inq := acceptedInquiry(t, e, partyInquiry("2026-10-30", "Sunset"), 60000)

	req := ConvertRequest{IdempotencyKey: "conv-1", Actor: models.ActorAdmin}
	_, first, err := e.inquiries.ConvertInquiry(ctx, inq.ID, req)
	require.NoError(t, err)

	converted, again, err := e.inquiries.ConvertInquiry(ctx, inq.ID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.InquiryConverted, converted.Status)
}

func TestInquiryService_ExpireStaleInquiries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	open, err := e.inquiries.SubmitInquiry(ctx, partyInquiry("2026-10-30", "Sunset"))
	require.NoError(t, err)
	soon, err := e.inquiries.SubmitInquiry(ctx, partyInquiry("2026-10-20", "Lunch"))
	require.NoError(t, err)
	accepted := acceptedInquiry(t, e, partyInquiry("2026-10-30", "Night"), 60000)

	// Дата события прошла раньше TTL
	e.clock.Set(at("2026-10-21", "09:00"))
	n, err := e.inquiries.ExpireStaleInquiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.inquiries.GetInquiry(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryExpired, got.Status)
	got, err = e.inquiries.GetInquiry(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryPending, got.Status)

	e.clock.Set(testNow.Add(73 * time.Hour))
	n, err = e.inquiries.ExpireStaleInquiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = e.inquiries.GetInquiry(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryExpired, got.Status)
	got, err = e.inquiries.GetInquiry(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryAccepted, got.Status)
	e.bus.AssertCalled(t, "PublishJSON", events.EventInquiryExpired, mock.Anything)
}
