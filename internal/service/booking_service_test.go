package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingService_CreateBooking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "BK-2026-000001", b.BookingNumber)
	assert.Equal(t, models.StatusPendingPayment, b.Status)
	assert.Equal(t, models.PaymentPending, b.PaymentStatus)
	assert.Equal(t, int64(5000), b.Pricing.Subtotal)
	assert.Equal(t, int64(900), b.Pricing.GSTAmount)
	assert.Equal(t, int64(5900), b.Pricing.FinalAmount)
	assert.Equal(t, 4, b.Passengers)
	assert.Equal(t, models.ActorCustomer, b.CreatedBy)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, testNow.Add(15*time.Minute), *b.ExpiresAt)
	assert.True(t, b.StartAt.Equal(at("2026-10-21", "10:00")))

	stored, err := e.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.BookingNumber, stored.BookingNumber)
	assert.Equal(t, b.Pricing.FinalAmount, stored.Pricing.FinalAmount)
	assert.True(t, stored.StartAt.Equal(b.StartAt))

	e.bus.AssertCalled(t, "PublishJSON", events.EventBookingCreated, mock.Anything)

	second, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "14:00"))
	require.NoError(t, err)
	assert.Equal(t, "BK-2026-000002", second.BookingNumber)
}

func TestBookingService_CreateBooking_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*CreateBookingRequest)
		want   error
	}{
		{"MissingName", func(r *CreateBookingRequest) { r.CustomerName = " " }, domain.ErrValidation},
		{"MissingPhone", func(r *CreateBookingRequest) { r.CustomerPhone = "" }, domain.ErrValidation},
		{"UnknownPaymentMode", func(r *CreateBookingRequest) { r.PaymentMode = "BARTER" }, domain.ErrValidation},
		{"CashByCustomer", func(r *CreateBookingRequest) { r.PaymentMode = models.PaymentCash }, domain.ErrForbidden},
		{"OutOfWindow", func(r *CreateBookingRequest) { r.Slot.Date = "2026-12-01" }, domain.ErrOutOfWindow},
		{"StartedSlot", func(r *CreateBookingRequest) { r.Slot.Date = "2026-10-19"; r.Slot.StartTime = "07:00" }, domain.ErrValidation},
		{"ClosedDay", func(r *CreateBookingRequest) { r.Slot.Date = "2026-10-25" }, domain.ErrSlotUnavailable},
		{"ExpiredCoupon", func(r *CreateBookingRequest) { r.CouponCode = "OLD" }, domain.ErrCouponInvalid},
		{"Maintenance", func(r *CreateBookingRequest) { r.ResourceID = "speed-docked" }, domain.ErrNotFound},
		{"DurationOffHalfHour", func(r *CreateBookingRequest) { r.Slot.DurationMinutes = 75 }, domain.ErrValidation},
		{"DurationOneMinuteOver", func(r *CreateBookingRequest) { r.Slot.DurationMinutes = 61 }, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := speedRequest("2026-10-21", "10:00")
			tt.modify(&req)
			_, err := e.bookings.CreateBooking(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	bookings, err := e.bookings.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestBookingService_CreateBooking_PaymentModes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-21", "10:00")
	req.PaymentMode = models.PaymentAtVenue
	b, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, models.PaymentPending, b.PaymentStatus)
	assert.Nil(t, b.ExpiresAt)

	req = speedRequest("2026-10-21", "14:00")
	req.PaymentMode = models.PaymentCash
	req.Actor = models.ActorAdmin
	b, err = e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, models.ActorAdmin, b.CreatedBy)
}

func TestBookingService_CreateBooking_Concurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		blocked int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrSlotUnavailable):
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, blocked)

	active, err := e.db.ListActiveBookings(ctx, "speed-1", "2026-10-21")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBookingService_CreateBooking_OverlapRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	_, err = e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "11:30"))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// Полуоткрытый интервал: 12:00 начинается ровно в момент окончания
	_, err = e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "12:00"))
	assert.NoError(t, err)
}

func TestBookingService_CreateBooking_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-21", "10:00")
	req.IdempotencyKey = "req-1"
	first, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	again, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.BookingNumber, again.BookingNumber)

	_, err = e.bookings.ModifyBookingDate(ctx, first.ID, ModifyRequest{
		IdempotencyKey: "req-1",
		Slot:           SlotSelection{Date: "2026-10-22", StartTime: "10:00"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBookingService_ConfirmBooking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "pay_1", models.ActorCustomer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	confirmed, err := e.bookings.ConfirmBooking(ctx, b.ID, "pay_1", models.ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, models.PaymentPaid, confirmed.PaymentStatus)
	assert.Equal(t, "pay_1", confirmed.TransactionRef)
	assert.Nil(t, confirmed.ExpiresAt)
	assert.Equal(t, b.Version+1, confirmed.Version)

	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "pay_2", models.ActorSystem)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_ConfirmBooking_AtVenue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-21", "10:00")
	req.PaymentMode = models.PaymentAtVenue
	b, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	paid, err := e.bookings.ConfirmBooking(ctx, b.ID, "", models.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
}

func TestBookingService_ConfirmBooking_Expired(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	e.clock.Set(testNow.Add(15 * time.Minute))
	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "pay_late", models.ActorSystem)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "payment window expired", te.Reason)

	stored, err := e.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, models.PaymentVoid, stored.PaymentStatus)
	require.NotNil(t, stored.Cancellation)
	assert.Equal(t, models.ReasonPaymentTimeout, stored.Cancellation.Reason)
	assert.Empty(t, stored.TransactionRef)
}

func TestBookingService_CancelBooking_Refunds(t *testing.T) {
	tests := []struct {
		name    string
		cancel  time.Time
		opts    CancelOptions
		percent int
		amount  int64
		payment models.PaymentStatus
		audits  int
	}{
		{"Free", at("2026-10-20", "04:00"), CancelOptions{}, 100, 5900, models.PaymentRefunded, 1},
		{"Partial", at("2026-10-20", "20:00"), CancelOptions{}, 50, 2950, models.PaymentPartiallyRefunded, 1},
		{"None", at("2026-10-21", "00:00"), CancelOptions{}, 0, 0, models.PaymentPaid, 0},
		{"Weather", at("2026-10-21", "09:00"), CancelOptions{Actor: models.ActorAdmin, Reason: models.ReasonWeather}, 100, 5900, models.PaymentRefunded, 1},
		{"Override", at("2026-10-21", "09:00"), CancelOptions{Actor: models.ActorAdmin, OverrideRefund: true, RefundPercent: 20, Note: "goodwill"}, 20, 1180, models.PaymentPartiallyRefunded, 1},
		{"OverrideZero", at("2026-10-20", "04:00"), CancelOptions{Actor: models.ActorAdmin, OverrideRefund: true, RefundPercent: 0}, 0, 0, models.PaymentPaid, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			ctx := context.Background()

			b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
			require.NoError(t, err)
			_, err = e.bookings.ConfirmBooking(ctx, b.ID, "pay_1", models.ActorSystem)
			require.NoError(t, err)

			e.clock.Set(tt.cancel)
			cancelled, err := e.bookings.CancelBooking(ctx, b.ID, tt.opts)
			require.NoError(t, err)

			assert.Equal(t, models.StatusCancelled, cancelled.Status)
			assert.Equal(t, tt.payment, cancelled.PaymentStatus)
			require.NotNil(t, cancelled.Cancellation)
			assert.Equal(t, tt.percent, cancelled.Cancellation.RefundPercent)
			assert.Equal(t, tt.amount, cancelled.Cancellation.RefundAmount)
			assert.Equal(t, tt.opts.OverrideRefund, cancelled.Cancellation.Overridden)

			audits, err := e.db.ListRefundAudits(ctx, b.ID)
			require.NoError(t, err)
			assert.Len(t, audits, tt.audits)

			e.bus.AssertCalled(t, "PublishJSON", events.EventBookingCancelled, mock.Anything)
		})
	}
}

func TestBookingService_CancelBooking_Rules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	_, err = e.bookings.CancelBooking(ctx, b.ID, CancelOptions{Reason: models.ReasonWeather})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.bookings.CancelBooking(ctx, b.ID, CancelOptions{OverrideRefund: true, RefundPercent: 100})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.bookings.CancelBooking(ctx, b.ID, CancelOptions{Reason: "BORED"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	cancelled, err := e.bookings.CancelBooking(ctx, b.ID, CancelOptions{Note: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentVoid, cancelled.PaymentStatus)
	assert.Equal(t, models.ReasonCustomer, cancelled.Cancellation.Reason)
	assert.Equal(t, BandUnpaid, cancelled.Cancellation.Band)
	assert.Equal(t, "plans changed", cancelled.Cancellation.Note)
	assert.Nil(t, cancelled.ExpiresAt)

	// Терминальное состояние
	_, err = e.bookings.CancelBooking(ctx, b.ID, CancelOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "", models.ActorAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = e.bookings.CompleteBooking(ctx, b.ID, models.ActorAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Слот снова свободен
	_, err = e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	assert.NoError(t, err)
}

func TestBookingService_CompleteAndNoShow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-19", "10:00")
	req.PaymentMode = models.PaymentAtVenue
	b, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	_, err = e.bookings.CompleteBooking(ctx, b.ID, models.ActorCustomer)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.bookings.CompleteBooking(ctx, b.ID, models.ActorSystem)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = e.bookings.MarkNoShow(ctx, b.ID, models.ActorSystem)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.bookings.MarkNoShow(ctx, b.ID, models.ActorAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	e.clock.Set(at("2026-10-19", "10:05"))
	noShow, err := e.bookings.MarkNoShow(ctx, b.ID, models.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoShow, noShow.Status)

	_, err = e.bookings.CompleteBooking(ctx, b.ID, models.ActorAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, e.bookings.DeleteBooking(ctx, b.ID, models.ActorAdmin))
	_, err = e.bookings.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_CompleteBooking_Admin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-21", "10:00")
	req.PaymentMode = models.PaymentAtVenue
	b, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	done, err := e.bookings.CompleteBooking(ctx, b.ID, models.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	e.bus.AssertCalled(t, "PublishJSON", events.EventBookingCompleted, mock.Anything)
}

func TestBookingService_DeleteBooking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	assert.ErrorIs(t, e.bookings.DeleteBooking(ctx, b.ID, models.ActorCustomer), domain.ErrForbidden)
	assert.ErrorIs(t, e.bookings.DeleteBooking(ctx, b.ID, models.ActorAdmin), domain.ErrInvalidTransition)
	assert.ErrorIs(t, e.bookings.DeleteBooking(ctx, "missing", models.ActorAdmin), domain.ErrNotFound)
}

func TestBookingService_ModifyBookingDate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	moved, err := e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{
		IdempotencyKey: "move-1",
		Slot:           SlotSelection{Date: "2026-10-24", StartTime: "11:00"},
		Actor:          models.ActorCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-24", moved.Date)
	assert.True(t, moved.StartAt.Equal(at("2026-10-24", "11:00")))
	assert.Equal(t, 120, moved.DurationMinutes)
	assert.Equal(t, int64(7080), moved.Pricing.FinalAmount)
	assert.Equal(t, 1, moved.DateModificationCount)
	require.Len(t, moved.DateModifications, 1)
	mod := moved.DateModifications[0]
	assert.Equal(t, "2026-10-21", mod.FromDate)
	assert.Equal(t, "2026-10-24", mod.ToDate)
	assert.Equal(t, int64(5900), mod.PreviousAmount)
	assert.Equal(t, int64(7080), mod.NewAmount)
	e.bus.AssertCalled(t, "PublishJSON", events.EventBookingRescheduled, mock.Anything)

	replayed, err := e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{
		IdempotencyKey: "move-1",
		Slot:           SlotSelection{Date: "2026-10-24", StartTime: "11:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, replayed.DateModificationCount)

	// Старый слот освободился
	_, err = e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	_, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-21", StartTime: "10:30"}})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// Сдвиг внутри своего же интервала не конфликтует сам с собой
	moved, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-24", StartTime: "12:00"}})
	require.NoError(t, err)
	assert.Equal(t, 2, moved.DateModificationCount)

	_, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-23", StartTime: "12:00"}})
	assert.ErrorIs(t, err, domain.ErrModificationWindowClosed)
}

func TestBookingService_ModifyBookingDate_Rules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-19", "10:00"))
	require.NoError(t, err)

	e.clock.Set(at("2026-10-19", "08:10"))
	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "", models.ActorSystem)
	require.NoError(t, err)

	e.clock.Set(at("2026-10-19", "10:00"))
	_, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-21", StartTime: "10:00"}})
	assert.ErrorIs(t, err, domain.ErrModificationWindowClosed)

	e.clock.Set(testNow)
	_, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-25", StartTime: "10:00"}})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	_, err = e.bookings.CancelBooking(ctx, b.ID, CancelOptions{Actor: models.ActorAdmin})
	require.NoError(t, err)
	_, err = e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-21", StartTime: "10:00"}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_SetAdminOverride(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	amount := int64(4000)
	_, err = e.bookings.SetAdminOverride(ctx, b.ID, &amount, models.ActorCustomer, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	negative := int64(-1)
	_, err = e.bookings.SetAdminOverride(ctx, b.ID, &negative, models.ActorAdmin, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	updated, err := e.bookings.SetAdminOverride(ctx, b.ID, &amount, models.ActorAdmin, "loyal customer")
	require.NoError(t, err)
	assert.Equal(t, int64(5900), updated.Pricing.FinalAmount)
	assert.Equal(t, int64(4000), updated.Pricing.PayableAmount())

	// Перенос пересчитывает цену, но сохраняет ручную сумму
	moved, err := e.bookings.ModifyBookingDate(ctx, b.ID, ModifyRequest{Slot: SlotSelection{Date: "2026-10-24", StartTime: "10:00"}})
	require.NoError(t, err)
	assert.Equal(t, int64(7080), moved.Pricing.FinalAmount)
	assert.Equal(t, int64(4000), moved.Pricing.PayableAmount())

	_, err = e.bookings.ConfirmBooking(ctx, b.ID, "pay", models.ActorSystem)
	require.NoError(t, err)
	cancelled, err := e.bookings.CancelBooking(ctx, b.ID, CancelOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), cancelled.Cancellation.RefundAmount)

	audits, err := e.db.ListRefundAudits(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	actions := []string{audits[0].Action, audits[1].Action}
	assert.Contains(t, actions, models.AuditAmountOverride)
	assert.Contains(t, actions, models.AuditRefund)

	_, err = e.bookings.SetAdminOverride(ctx, b.ID, nil, models.ActorAdmin, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_ExpirePendingPayments(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	stale, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)

	e.clock.Set(testNow.Add(10 * time.Minute))
	fresh, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "14:00"))
	require.NoError(t, err)

	e.clock.Set(testNow.Add(16 * time.Minute))
	n, err := e.bookings.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.bookings.GetBooking(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, models.PaymentVoid, got.PaymentStatus)
	assert.Equal(t, models.ActorSystem, got.Cancellation.Actor)

	got, err = e.bookings.GetBooking(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)

	n, err = e.bookings.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBookingService_CompleteFinishedBookings(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := speedRequest("2026-10-19", "09:00")
	req.PaymentMode = models.PaymentAtVenue
	early, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	req = speedRequest("2026-10-19", "14:00")
	req.PaymentMode = models.PaymentAtVenue
	late, err := e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	e.clock.Set(at("2026-10-19", "12:00"))
	n, err := e.bookings.CompleteFinishedBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.bookings.GetBooking(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	got, err = e.bookings.GetBooking(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}

func TestBookingService_ListBookings(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.bookings.CreateBooking(ctx, speedRequest("2026-10-21", "10:00"))
	require.NoError(t, err)
	req := speedRequest("2026-10-22", "10:00")
	req.PaymentMode = models.PaymentAtVenue
	_, err = e.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	all, err := e.bookings.ListBookings(ctx, models.BookingFilter{ResourceID: "speed-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	confirmed, err := e.bookings.ListBookings(ctx, models.BookingFilter{Status: models.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "2026-10-22", confirmed[0].Date)

	_, err = e.bookings.ListBookings(ctx, models.BookingFilter{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
