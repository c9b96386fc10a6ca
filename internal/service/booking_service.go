package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/logging"
	"prichal/internal/metrics"
	"prichal/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	opCreateBooking  = "create_booking"
	opModifyBooking  = "modify_booking"
	opConvertInquiry = "convert_inquiry"
)

// errUnchanged aborts an update transaction without reporting a failure.
var errUnchanged = errors.New("booking unchanged")

// CreateBookingRequest carries a new booking. Quantity is boats (SPEED only);
// Guests is passengers for SPEED and guests for PARTY.
type CreateBookingRequest struct {
	IdempotencyKey  string                 `json:"-"`
	CustomerID      string                 `json:"customer_id,omitempty"`
	CustomerName    string                 `json:"customer_name"`
	CustomerPhone   string                 `json:"customer_phone"`
	CustomerSegment string                 `json:"customer_segment,omitempty"`
	ResourceID      string                 `json:"resource_id"`
	Slot            SlotSelection          `json:"slot"`
	Quantity        int                    `json:"quantity"`
	Guests          int                    `json:"guests"`
	EventType       string                 `json:"event_type,omitempty"`
	LocationType    string                 `json:"location_type,omitempty"`
	AddOns          []models.SelectedAddOn `json:"add_ons,omitempty"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
	PaymentMode     models.PaymentMode     `json:"payment_mode"`
	TransactionRef  string                 `json:"transaction_ref,omitempty"`
	Actor           models.Actor           `json:"-"`

	inquiryID      string
	overrideAmount *int64
}

// ModifyRequest moves a booking to another slot of the same resource.
type ModifyRequest struct {
	IdempotencyKey string        `json:"-"`
	Slot           SlotSelection `json:"slot"`
	Actor          models.Actor  `json:"-"`
}

// BookingService is the booking ledger: every state change of a booking goes through it.
type BookingService struct {
	repo     domain.Repository
	slots    *AvailabilityService
	pricing  *PricingService
	refunds  *CancellationResolver
	eventBus domain.EventPublisher
	clock    domain.Clock
	prefix   string
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, slots *AvailabilityService, pricing *PricingService, refunds *CancellationResolver, eventBus domain.EventPublisher, clock domain.Clock, prefix string, logger *zerolog.Logger) *BookingService {
	if prefix == "" {
		prefix = models.DefaultBookingPrefix
	}
	return &BookingService{
		repo:     repo,
		slots:    slots,
		pricing:  pricing,
		refunds:  refunds,
		eventBus: eventBus,
		clock:    clock,
		prefix:   prefix,
		logger:   logger,
	}
}

// CreateBooking prices and commits a new booking. Capacity is re-checked under the
// resource/date lock in the same transaction as the insert.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	started := time.Now()
	if existing, err := s.replay(ctx, req.IdempotencyKey, opCreateBooking); err != nil || existing != nil {
		return existing, err
	}

	booking, sc, slot, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}

	var replayed *models.Booking
	err = s.repo.WithLock(ctx, booking.ResourceID, booking.Date, func(ctx context.Context) error {
		// Параллельный дубль с тем же ключом мог закоммитить раньше
		existing, err := s.replay(ctx, req.IdempotencyKey, opCreateBooking)
		if err != nil {
			return err
		}
		if existing != nil {
			replayed = existing
			return nil
		}

		if err := s.insertLocked(ctx, booking, sc, slot); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return s.repo.SaveIdempotencyKey(ctx, req.IdempotencyKey, opCreateBooking, booking.ID)
		}
		return nil
	})
	if err != nil {
		s.rejected(booking, opCreateBooking, err)
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}

	metrics.ObserveCommit(started)
	s.committed(booking, opCreateBooking)
	s.publishEvent(events.EventBookingCreated, booking, booking.CreatedBy)
	return booking, nil
}

// ConfirmBooking settles payment: PENDING_PAYMENT becomes CONFIRMED and PAID, a CONFIRMED
// booking paid at the venue becomes PAID. An expired pending booking is cancelled instead.
func (s *BookingService) ConfirmBooking(ctx context.Context, id, transactionRef string, actor models.Actor) (*models.Booking, error) {
	if actor != models.ActorAdmin && actor != models.ActorSystem {
		return nil, fmt.Errorf("payment confirmation by %s: %w", actor, domain.ErrForbidden)
	}
	now := s.clock.Now()

	expired := false
	booking, err := s.update(ctx, id, func(ctx context.Context, b *models.Booking) error {
		switch {
		case b.PaymentExpired(now):
			cancelUnpaid(b, models.ReasonPaymentTimeout, models.ActorSystem, now)
			expired = true
			return nil
		case b.Status == models.StatusPendingPayment:
			b.Status = models.StatusConfirmed
			b.PaymentStatus = models.PaymentPaid
			b.ExpiresAt = nil
		case b.Status == models.StatusConfirmed && b.PaymentStatus == models.PaymentPending:
			b.PaymentStatus = models.PaymentPaid
		default:
			return transitionErr(b, models.StatusConfirmed, "payment already settled or booking closed")
		}
		if transactionRef != "" {
			b.TransactionRef = transactionRef
		}
		return nil
	})
	if err != nil {
		s.transitionFailed(id, "confirm", err)
		return nil, err
	}

	if expired {
		metrics.IncCancellation(string(models.ReasonPaymentTimeout))
		s.publishEvent(events.EventBookingCancelled, booking, models.ActorSystem)
		err := &domain.TransitionError{
			Entity: "booking",
			ID:     booking.ID,
			From:   string(models.StatusPendingPayment),
			To:     string(models.StatusConfirmed),
			Reason: "payment window expired",
		}
		s.transitionFailed(id, "confirm", err)
		return nil, err
	}

	logging.Booking(s.logger.Info(), booking).Str("payment_status", string(booking.PaymentStatus)).Msg("Booking payment confirmed")
	s.publishEvent(events.EventBookingConfirmed, booking, actor)
	return booking, nil
}

// CancelBooking cancels a pending or confirmed booking and records the refund owed.
func (s *BookingService) CancelBooking(ctx context.Context, id string, opts CancelOptions) (*models.Booking, error) {
	if opts.Actor == "" {
		opts.Actor = models.ActorCustomer
	}
	if opts.Reason == "" {
		opts.Reason = models.ReasonCustomer
		if opts.Actor == models.ActorAdmin {
			opts.Reason = models.ReasonAdmin
		}
	}
	if !opts.Reason.Valid() {
		return nil, domain.Invalid("reason", "unknown cancellation reason %q", opts.Reason)
	}
	if opts.Actor == models.ActorCustomer && (opts.Reason != models.ReasonCustomer || opts.OverrideRefund) {
		return nil, fmt.Errorf("customer cancellation with reason %s: %w", opts.Reason, domain.ErrForbidden)
	}
	now := s.clock.Now()

	var refund models.Refund
	booking, err := s.update(ctx, id, func(ctx context.Context, b *models.Booking) error {
		if !b.Status.CanTransitionTo(models.StatusCancelled) {
			return transitionErr(b, models.StatusCancelled, "")
		}
		if b.Status != models.StatusConfirmed || b.PaymentStatus != models.PaymentPaid {
			// Деньги не получены, возвращать нечего
			cancelUnpaid(b, opts.Reason, opts.Actor, now)
			b.Cancellation.Note = opts.Note
			return nil
		}

		var err error
		refund, err = s.refunds.Resolve(ctx, b, now, opts)
		if err != nil {
			return err
		}
		switch {
		case refund.Percent >= 100:
			b.PaymentStatus = models.PaymentRefunded
		case refund.Percent > 0:
			b.PaymentStatus = models.PaymentPartiallyRefunded
		}
		b.Status = models.StatusCancelled
		b.Cancellation = &models.Cancellation{
			Reason:        opts.Reason,
			Actor:         opts.Actor,
			CancelledAt:   now,
			RefundPercent: refund.Percent,
			RefundAmount:  refund.Amount,
			Band:          refund.Band,
			Overridden:    refund.Overridden,
			Note:          opts.Note,
		}

		if refund.Amount == 0 && !refund.Overridden {
			return nil
		}
		action := models.AuditRefund
		if refund.Overridden {
			action = models.AuditRefundOverride
		}
		return s.repo.CreateRefundAudit(ctx, &models.RefundAudit{
			BookingID:  b.ID,
			Action:     action,
			Actor:      opts.Actor,
			Percent:    refund.Percent,
			Amount:     refund.Amount,
			Overridden: refund.Overridden,
			Note:       opts.Note,
			CreatedAt:  now,
		})
	})
	if err != nil {
		s.transitionFailed(id, "cancel", err)
		return nil, err
	}

	if refund.Overridden {
		logging.Booking(s.logger.Warn(), booking).
			Int("refund_percent", refund.Percent).
			Int64("refund_amount", refund.Amount).
			Str("note", opts.Note).
			Msg("Refund overridden by admin")
	}
	metrics.IncCancellation(string(opts.Reason))
	logging.Booking(s.logger.Info(), booking).
		Str("reason", string(opts.Reason)).
		Int("refund_percent", refund.Percent).
		Msg("Booking cancelled")
	s.publishEvent(events.EventBookingCancelled, booking, opts.Actor)
	return booking, nil
}

// CompleteBooking closes a confirmed booking. The system may only do so after the booking
// has ended; an admin may close it at any time.
func (s *BookingService) CompleteBooking(ctx context.Context, id string, actor models.Actor) (*models.Booking, error) {
	if actor != models.ActorAdmin && actor != models.ActorSystem {
		return nil, fmt.Errorf("completion by %s: %w", actor, domain.ErrForbidden)
	}
	now := s.clock.Now()

	booking, err := s.update(ctx, id, func(ctx context.Context, b *models.Booking) error {
		if !b.Status.CanTransitionTo(models.StatusCompleted) {
			return transitionErr(b, models.StatusCompleted, "")
		}
		if actor == models.ActorSystem && now.Before(b.EndAt()) {
			return transitionErr(b, models.StatusCompleted, "booking has not ended")
		}
		b.Status = models.StatusCompleted
		return nil
	})
	if err != nil {
		s.transitionFailed(id, "complete", err)
		return nil, err
	}

	logging.Booking(s.logger.Info(), booking).Str("actor", string(actor)).Msg("Booking completed")
	s.publishEvent(events.EventBookingCompleted, booking, actor)
	return booking, nil
}

// MarkNoShow is admin-only and possible once the booking start has passed.
func (s *BookingService) MarkNoShow(ctx context.Context, id string, actor models.Actor) (*models.Booking, error) {
	if actor != models.ActorAdmin {
		return nil, fmt.Errorf("no-show by %s: %w", actor, domain.ErrForbidden)
	}
	now := s.clock.Now()

	booking, err := s.update(ctx, id, func(ctx context.Context, b *models.Booking) error {
		if !b.Status.CanTransitionTo(models.StatusNoShow) {
			return transitionErr(b, models.StatusNoShow, "")
		}
		if now.Before(b.StartAt) {
			return transitionErr(b, models.StatusNoShow, "booking has not started")
		}
		b.Status = models.StatusNoShow
		return nil
	})
	if err != nil {
		s.transitionFailed(id, "no_show", err)
		return nil, err
	}

	logging.Booking(s.logger.Info(), booking).Msg("Booking marked as no-show")
	s.publishEvent(events.EventBookingNoShow, booking, actor)
	return booking, nil
}

// ModifyBookingDate moves a booking to a new slot of the same resource and reprices it.
func (s *BookingService) ModifyBookingDate(ctx context.Context, id string, req ModifyRequest) (*models.Booking, error) {
	started := time.Now()
	if existing, err := s.replay(ctx, req.IdempotencyKey, opModifyBooking); err != nil || existing != nil {
		return existing, err
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !current.Status.Modifiable() {
		err := transitionErr(current, current.Status, "date can only change while pending or confirmed")
		s.transitionFailed(id, "modify", err)
		return nil, err
	}
	if !now.Before(current.StartAt) {
		return nil, fmt.Errorf("booking %s started at %s: %w", current.ID, current.StartAt.Format(time.RFC3339), domain.ErrModificationWindowClosed)
	}

	sc, err := s.slots.load(ctx, current.ResourceID, req.Slot.Date)
	if err != nil {
		return nil, err
	}
	if limit := sc.policy.MaxDateModifications; limit > 0 && current.DateModificationCount >= limit {
		return nil, fmt.Errorf("booking %s already modified %d times: %w", current.ID, current.DateModificationCount, domain.ErrModificationWindowClosed)
	}
	if req.Slot.DurationMinutes == 0 {
		req.Slot.DurationMinutes = current.DurationMinutes
	}
	slot, err := s.slots.resolveSlot(sc, req.Slot, now)
	if err != nil {
		return nil, err
	}
	pricing, lines, err := s.pricing.price(sc, slot, quoteFromBooking(current), now)
	if err != nil {
		return nil, err
	}
	pricing.AdminOverrideAmount = current.Pricing.AdminOverrideAmount

	var (
		booking  *models.Booking
		replayed *models.Booking
	)
	err = s.repo.WithLock(ctx, current.ResourceID, sc.date, func(ctx context.Context) error {
		existing, err := s.replay(ctx, req.IdempotencyKey, opModifyBooking)
		if err != nil {
			return err
		}
		if existing != nil {
			replayed = existing
			return nil
		}

		b, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if b.Version != current.Version {
			return fmt.Errorf("booking %s changed while rescheduling: %w", id, domain.ErrConcurrentModification)
		}
		if err := s.slots.ensureFree(ctx, sc.resource, slot, b.Units(), b.ID); err != nil {
			return err
		}

		b.DateModifications = append(b.DateModifications, models.DateModification{
			FromDate:       b.Date,
			FromStart:      b.StartAt,
			FromSlot:       b.SlotLabel,
			ToDate:         slot.Date,
			ToStart:        slot.StartAt,
			ToSlot:         slot.Label,
			PreviousAmount: b.Pricing.PayableAmount(),
			NewAmount:      pricing.PayableAmount(),
			ModifiedBy:     req.Actor,
			ModifiedAt:     now,
		})
		b.DateModificationCount++
		b.Date = slot.Date
		b.StartAt = slot.StartAt
		b.DurationMinutes = slot.DurationMinutes
		b.SlotLabel = slot.Label
		b.AddOns = lines
		b.Pricing = pricing
		if err := s.repo.UpdateBookingWithVersion(ctx, b); err != nil {
			return err
		}
		booking = b

		if req.IdempotencyKey != "" {
			return s.repo.SaveIdempotencyKey(ctx, req.IdempotencyKey, opModifyBooking, b.ID)
		}
		return nil
	})
	if err != nil {
		s.rejected(current, opModifyBooking, err)
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}

	metrics.ObserveCommit(started)
	s.committed(booking, opModifyBooking)
	s.publishEvent(events.EventBookingRescheduled, booking, req.Actor)
	return booking, nil
}

// SetAdminOverride replaces the payable amount of an open booking; nil clears the override.
func (s *BookingService) SetAdminOverride(ctx context.Context, id string, amount *int64, actor models.Actor, note string) (*models.Booking, error) {
	if actor != models.ActorAdmin {
		return nil, fmt.Errorf("amount override by %s: %w", actor, domain.ErrForbidden)
	}
	if amount != nil && *amount < 0 {
		return nil, domain.Invalid("amount", "must not be negative")
	}
	now := s.clock.Now()

	booking, err := s.update(ctx, id, func(ctx context.Context, b *models.Booking) error {
		if !b.Status.Modifiable() {
			return transitionErr(b, b.Status, "amount can only change while pending or confirmed")
		}
		b.Pricing.AdminOverrideAmount = amount

		audit := &models.RefundAudit{
			BookingID:  b.ID,
			Action:     models.AuditAmountOverride,
			Actor:      actor,
			Overridden: amount != nil,
			Note:       note,
			CreatedAt:  now,
		}
		if amount != nil {
			audit.Amount = *amount
		}
		return s.repo.CreateRefundAudit(ctx, audit)
	})
	if err != nil {
		s.transitionFailed(id, "override", err)
		return nil, err
	}

	logging.Booking(s.logger.Warn(), booking).
		Int64("final_amount", booking.Pricing.FinalAmount).
		Int64("payable_amount", booking.Pricing.PayableAmount()).
		Str("note", note).
		Msg("Booking amount overridden by admin")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.load(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, domain.Invalid("limit", "limit and offset must not be negative")
	}
	return s.repo.ListBookings(ctx, filter)
}

// DeleteBooking soft-deletes a booking in a terminal state. Bookings are financial
// records and are never removed physically.
func (s *BookingService) DeleteBooking(ctx context.Context, id string, actor models.Actor) error {
	if actor != models.ActorAdmin {
		return fmt.Errorf("delete by %s: %w", actor, domain.ErrForbidden)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !b.Status.IsTerminal() {
		return transitionErr(b, b.Status, "only closed bookings can be deleted")
	}
	if err := s.repo.SoftDeleteBooking(ctx, id, s.clock.Now()); err != nil {
		return err
	}
	logging.Booking(s.logger.Info(), b).Msg("Booking deleted")
	return nil
}

// ExpirePendingPayments cancels online bookings whose payment window has passed.
func (s *BookingService) ExpirePendingPayments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	pending, err := s.repo.ListExpiredPendingBookings(ctx, now, models.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range pending {
		booking, err := s.update(ctx, pending[i].ID, func(ctx context.Context, b *models.Booking) error {
			if !b.PaymentExpired(now) {
				return errUnchanged
			}
			cancelUnpaid(b, models.ReasonPaymentTimeout, models.ActorSystem, now)
			return nil
		})
		if errors.Is(err, errUnchanged) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("booking_id", pending[i].ID).Msg("Failed to expire pending booking")
			continue
		}

		expired++
		metrics.IncCancellation(string(models.ReasonPaymentTimeout))
		logging.Booking(s.logger.Info(), booking).Msg("Pending payment expired")
		s.publishEvent(events.EventBookingCancelled, booking, models.ActorSystem)
	}
	metrics.AddSwept("payment_expiry", expired)
	return expired, nil
}

// CompleteFinishedBookings closes confirmed bookings whose end time has passed.
func (s *BookingService) CompleteFinishedBookings(ctx context.Context) (int, error) {
	finished, err := s.repo.ListFinishedBookings(ctx, s.clock.Now(), models.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range finished {
		if _, err := s.CompleteBooking(ctx, finished[i].ID, models.ActorSystem); err != nil {
			s.logger.Error().Err(err).Str("booking_id", finished[i].ID).Msg("Failed to complete booking")
			continue
		}
		completed++
	}
	metrics.AddSwept("completion", completed)
	return completed, nil
}

// draft validates and prices a booking request without touching storage.
func (s *BookingService) draft(ctx context.Context, req CreateBookingRequest) (*models.Booking, *slotContext, models.Slot, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, nil, models.Slot{}, domain.Invalid("customer_name", "is required")
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, nil, models.Slot{}, domain.Invalid("customer_phone", "is required")
	}
	if req.Actor == "" {
		req.Actor = models.ActorCustomer
	}
	if req.PaymentMode == "" {
		req.PaymentMode = models.PaymentOnline
	}
	if !req.PaymentMode.Valid() {
		return nil, nil, models.Slot{}, domain.Invalid("payment_mode", "unknown payment mode %q", req.PaymentMode)
	}
	if req.PaymentMode == models.PaymentCash && req.Actor != models.ActorAdmin {
		return nil, nil, models.Slot{}, fmt.Errorf("cash booking by %s: %w", req.Actor, domain.ErrForbidden)
	}

	sc, err := s.slots.load(ctx, req.ResourceID, req.Slot.Date)
	if err != nil {
		return nil, nil, models.Slot{}, err
	}
	now := s.clock.Now()
	slot, err := s.slots.resolveSlot(sc, req.Slot, now)
	if err != nil {
		return nil, nil, models.Slot{}, err
	}
	if err := checkParty(sc.resource, req.Quantity, req.Guests); err != nil {
		return nil, nil, models.Slot{}, err
	}

	quote := QuoteRequest{
		ResourceID:      sc.resource.ID,
		Slot:            req.Slot,
		Quantity:        req.Quantity,
		Guests:          req.Guests,
		AddOns:          req.AddOns,
		CouponCode:      req.CouponCode,
		CustomerSegment: req.CustomerSegment,
	}
	pricing, lines, err := s.pricing.price(sc, slot, quote, now)
	if err != nil {
		return nil, nil, models.Slot{}, err
	}
	if req.overrideAmount != nil && *req.overrideAmount != pricing.FinalAmount {
		pricing.AdminOverrideAmount = req.overrideAmount
	}

	b := &models.Booking{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		CustomerSegment: req.CustomerSegment,
		ResourceID:      sc.resource.ID,
		ResourceType:    sc.resource.Type,
		Date:            slot.Date,
		StartAt:         slot.StartAt,
		DurationMinutes: slot.DurationMinutes,
		SlotLabel:       slot.Label,
		Quantity:        max(req.Quantity, 1),
		EventType:       req.EventType,
		LocationType:    req.LocationType,
		AddOns:          lines,
		Pricing:         pricing,
		Status:          req.PaymentMode.InitialStatus(),
		PaymentStatus:   models.PaymentPending,
		PaymentMode:     req.PaymentMode,
		TransactionRef:  req.TransactionRef,
		InquiryID:       req.inquiryID,
		CreatedBy:       req.Actor,
		CreatedAt:       now,
	}
	if pricing.Coupon != nil {
		b.CouponCode = pricing.Coupon.Code
	}
	if sc.resource.Type == models.VesselParty {
		b.Quantity = 1
		b.NumberOfGuests = req.Guests
	} else {
		b.Passengers = req.Guests
	}
	if b.Status == models.StatusPendingPayment {
		expiresAt := now.Add(time.Duration(sc.policy.PaymentExpiryMinutes) * time.Minute)
		b.ExpiresAt = &expiresAt
	}
	return b, sc, slot, nil
}

// insertLocked re-checks capacity, numbers and stores the booking. ctx must come from WithLock.
func (s *BookingService) insertLocked(ctx context.Context, b *models.Booking, sc *slotContext, slot models.Slot) error {
	if err := s.slots.ensureFree(ctx, sc.resource, slot, b.Units(), ""); err != nil {
		return err
	}
	number, err := nextNumber(ctx, s.repo, s.clock, s.prefix)
	if err != nil {
		return err
	}
	b.BookingNumber = number
	return s.repo.CreateBooking(ctx, b)
}

// nextNumber formats a human-readable number like BK-2026-000042.
func nextNumber(ctx context.Context, repo domain.Repository, clock domain.Clock, prefix string) (string, error) {
	sequence := fmt.Sprintf("%s-%d", prefix, clock.Now().In(clock.Location()).Year())
	n, err := repo.NextSequence(ctx, sequence)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", sequence, n), nil
}

// replay returns the booking an idempotency key already produced, if any.
func (s *BookingService) replay(ctx context.Context, key, operation string) (*models.Booking, error) {
	if key == "" {
		return nil, nil
	}
	op, entityID, err := s.repo.GetIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if op != operation {
		return nil, domain.Invalid("idempotency_key", "already used for %s", op)
	}
	s.logger.Debug().Str("idempotency_key", key).Str("booking_id", entityID).Msg("Replaying idempotent request")
	return s.repo.GetBooking(ctx, entityID)
}

// load returns a booking that is not soft-deleted.
func (s *BookingService) load(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsDeleted {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

// update applies fn to a freshly loaded booking and stores it with a version check, in one transaction.
func (s *BookingService) update(ctx context.Context, id string, fn func(ctx context.Context, b *models.Booking) error) (*models.Booking, error) {
	var booking *models.Booking
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		b, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, b); err != nil {
			return err
		}
		if err := s.repo.UpdateBookingWithVersion(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	return booking, err
}

func (s *BookingService) committed(b *models.Booking, operation string) {
	metrics.IncBookingCommitted(string(b.ResourceType), operation)
	logging.Booking(s.logger.Info(), b).
		Str("operation", operation).
		Int64("final_amount", b.Pricing.PayableAmount()).
		Msg("Booking committed")
}

func (s *BookingService) rejected(b *models.Booking, operation string, err error) {
	code := domain.Code(err)
	metrics.IncCommitRejected(code)
	e := s.logger.Warn()
	if code == "INTERNAL" || code == "TRANSIENT" {
		e = s.logger.Error()
	}
	logging.Booking(e, b).Err(err).Str("operation", operation).Str("code", code).Msg("Booking commit rejected")
}

func (s *BookingService) transitionFailed(id, action string, err error) {
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.logger.Error().Err(err).Str("booking_id", id).Str("action", action).Msg("Invalid booking transition")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy models.Actor) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		BookingNumber: booking.BookingNumber,
		CustomerName:  booking.CustomerName,
		CustomerPhone: booking.CustomerPhone,
		ResourceID:    booking.ResourceID,
		Date:          booking.Date,
		StartAt:       booking.StartAt,
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		Amount:        booking.Pricing.PayableAmount(),
		ChangedBy:     string(changedBy),
	}
	if c := booking.Cancellation; c != nil {
		payload.RefundPercent = c.RefundPercent
		payload.RefundAmount = c.RefundAmount
		payload.Reason = string(c.Reason)
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func cancelUnpaid(b *models.Booking, reason models.CancellationReason, actor models.Actor, now time.Time) {
	b.Status = models.StatusCancelled
	b.PaymentStatus = models.PaymentVoid
	b.ExpiresAt = nil
	b.Cancellation = &models.Cancellation{
		Reason:      reason,
		Actor:       actor,
		CancelledAt: now,
		Band:        BandUnpaid,
	}
}

func quoteFromBooking(b *models.Booking) QuoteRequest {
	guests := b.Passengers
	if b.ResourceType == models.VesselParty {
		guests = b.NumberOfGuests
	}
	return QuoteRequest{
		ResourceID:      b.ResourceID,
		Quantity:        b.Quantity,
		Guests:          guests,
		AddOns:          b.AddOns,
		CouponCode:      b.CouponCode,
		CustomerSegment: b.CustomerSegment,
	}
}

func transitionErr(b *models.Booking, to models.BookingStatus, reason string) error {
	return &domain.TransitionError{
		Entity: "booking",
		ID:     b.ID,
		From:   string(b.Status),
		To:     string(to),
		Reason: reason,
	}
}
