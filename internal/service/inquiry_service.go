package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/metrics"
	"prichal/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SubmitInquiryRequest struct {
	CustomerID     string                 `json:"customer_id,omitempty"`
	CustomerName   string                 `json:"customer_name"`
	CustomerPhone  string                 `json:"customer_phone"`
	CustomerEmail  string                 `json:"customer_email,omitempty"`
	ResourceID     string                 `json:"resource_id"`
	EventType      string                 `json:"event_type"`
	Date           string                 `json:"date"`
	SlotLabel      string                 `json:"slot_label"`
	LocationType   string                 `json:"location_type,omitempty"`
	NumberOfGuests int                    `json:"number_of_guests"`
	AddOns         []models.SelectedAddOn `json:"add_ons,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
}

// ConvertRequest turns an accepted inquiry into a booking. Date and SlotLabel
// optionally replace the inquiry's slot; they are stored only if the conversion commits.
type ConvertRequest struct {
	IdempotencyKey string             `json:"-"`
	Date           string             `json:"date,omitempty"`
	SlotLabel      string             `json:"slot_label,omitempty"`
	PaymentMode    models.PaymentMode `json:"payment_mode,omitempty"`
	TransactionRef string             `json:"transaction_ref,omitempty"`
	Actor          models.Actor       `json:"-"`
}

// InquiryService runs the party-boat inquiry negotiation and converts accepted inquiries into bookings.
type InquiryService struct {
	repo     domain.Repository
	slots    *AvailabilityService
	bookings *BookingService
	eventBus domain.EventPublisher
	clock    domain.Clock
	prefix   string
	logger   *zerolog.Logger
}

func NewInquiryService(repo domain.Repository, slots *AvailabilityService, bookings *BookingService, eventBus domain.EventPublisher, clock domain.Clock, prefix string, logger *zerolog.Logger) *InquiryService {
	if prefix == "" {
		prefix = models.DefaultInquiryPrefix
	}
	return &InquiryService{
		repo:     repo,
		slots:    slots,
		bookings: bookings,
		eventBus: eventBus,
		clock:    clock,
		prefix:   prefix,
		logger:   logger,
	}
}

func (s *InquiryService) SubmitInquiry(ctx context.Context, req SubmitInquiryRequest) (*models.Inquiry, error) {
	switch {
	case strings.TrimSpace(req.CustomerName) == "":
		return nil, domain.Invalid("customer_name", "is required")
	case strings.TrimSpace(req.CustomerPhone) == "":
		return nil, domain.Invalid("customer_phone", "is required")
	case strings.TrimSpace(req.EventType) == "":
		return nil, domain.Invalid("event_type", "is required")
	}

	sc, err := s.slots.load(ctx, req.ResourceID, req.Date)
	if err != nil {
		return nil, err
	}
	if sc.resource.Type != models.VesselParty {
		return nil, domain.Invalid("resource_id", "%s is not a party boat", sc.resource.ID)
	}
	now := s.clock.Now()
	if _, err := s.slots.resolveSlot(sc, SlotSelection{Date: req.Date, SlotLabel: req.SlotLabel}, now); err != nil {
		return nil, err
	}
	if err := checkGuests(sc.resource, req.NumberOfGuests); err != nil {
		return nil, err
	}
	addOns, _, err := priceAddOns(sc.resource, req.AddOns, req.NumberOfGuests)
	if err != nil {
		return nil, err
	}

	inquiry := &models.Inquiry{
		ID:             uuid.NewString(),
		CustomerID:     req.CustomerID,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:  req.CustomerEmail,
		ResourceID:     sc.resource.ID,
		EventType:      req.EventType,
		Date:           sc.date,
		SlotLabel:      req.SlotLabel,
		LocationType:   req.LocationType,
		NumberOfGuests: req.NumberOfGuests,
		AddOns:         addOns,
		Notes:          req.Notes,
		Status:         models.InquiryPending,
		CreatedAt:      now,
	}
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		number, err := nextNumber(ctx, s.repo, s.clock, s.prefix)
		if err != nil {
			return err
		}
		inquiry.InquiryNumber = number
		return s.repo.CreateInquiry(ctx, inquiry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("inquiry_id", inquiry.ID).Str("inquiry_number", inquiry.InquiryNumber).Str("resource_id", inquiry.ResourceID).Msg("Inquiry submitted")
	s.publishEvent(events.EventInquirySubmitted, inquiry)
	return inquiry, nil
}

// QuoteInquiry attaches the admin's negotiated price.
func (s *InquiryService) QuoteInquiry(ctx context.Context, id string, amount int64, details string, actor models.Actor) (*models.Inquiry, error) {
	if actor != models.ActorAdmin {
		return nil, fmt.Errorf("inquiry quote by %s: %w", actor, domain.ErrForbidden)
	}
	if amount < 0 {
		return nil, domain.Invalid("amount", "must not be negative")
	}
	now := s.clock.Now()

	inquiry, err := s.update(ctx, id, models.InquiryQuoted, func(inq *models.Inquiry) {
		inq.QuotedAmount = &amount
		inq.QuotedDetails = details
		inq.QuotedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventInquiryQuoted, inquiry)
	return inquiry, nil
}

func (s *InquiryService) AcceptInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	now := s.clock.Now()
	return s.update(ctx, id, models.InquiryAccepted, func(inq *models.Inquiry) {
		inq.RespondedAt = &now
	})
}

func (s *InquiryService) RejectInquiry(ctx context.Context, id, reason string) (*models.Inquiry, error) {
	now := s.clock.Now()
	return s.update(ctx, id, models.InquiryRejected, func(inq *models.Inquiry) {
		inq.RejectionReason = reason
		inq.RespondedAt = &now
	})
}

// ConvertInquiry creates the party booking for an accepted inquiry. It succeeds at most once;
// if the slot is no longer free the inquiry stays ACCEPTED and nothing is written.
func (s *InquiryService) ConvertInquiry(ctx context.Context, id string, req ConvertRequest) (*models.Inquiry, *models.Booking, error) {
	if req.Actor != models.ActorAdmin {
		return nil, nil, fmt.Errorf("inquiry conversion by %s: %w", req.Actor, domain.ErrForbidden)
	}
	started := time.Now()

	if existing, err := s.bookings.replay(ctx, req.IdempotencyKey, opConvertInquiry); err != nil || existing != nil {
		if err != nil {
			return nil, nil, err
		}
		inquiry, err := s.load(ctx, existing.InquiryID)
		return inquiry, existing, err
	}

	inquiry, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if inquiry.Status != models.InquiryAccepted {
		err := inquiryTransitionErr(inquiry, models.InquiryConverted)
		s.logger.Error().Err(err).Str("inquiry_id", id).Msg("Invalid inquiry transition")
		return nil, nil, err
	}

	slot := SlotSelection{Date: inquiry.Date, SlotLabel: inquiry.SlotLabel}
	if req.Date != "" {
		slot.Date = req.Date
	}
	if req.SlotLabel != "" {
		slot.SlotLabel = req.SlotLabel
	}
	if req.PaymentMode == "" {
		req.PaymentMode = models.PaymentAtVenue
	}

	booking, sc, resolved, err := s.bookings.draft(ctx, CreateBookingRequest{
		CustomerID:     inquiry.CustomerID,
		CustomerName:   inquiry.CustomerName,
		CustomerPhone:  inquiry.CustomerPhone,
		ResourceID:     inquiry.ResourceID,
		Slot:           slot,
		Guests:         inquiry.NumberOfGuests,
		EventType:      inquiry.EventType,
		LocationType:   inquiry.LocationType,
		AddOns:         inquiry.AddOns,
		PaymentMode:    req.PaymentMode,
		TransactionRef: req.TransactionRef,
		Actor:          req.Actor,
		inquiryID:      inquiry.ID,
		overrideAmount: inquiry.QuotedAmount,
	})
	if err != nil {
		return nil, nil, err
	}

	var replayed *models.Booking
	err = s.repo.WithLock(ctx, booking.ResourceID, booking.Date, func(ctx context.Context) error {
		existing, err := s.bookings.replay(ctx, req.IdempotencyKey, opConvertInquiry)
		if err != nil {
			return err
		}
		if existing != nil {
			replayed = existing
			return nil
		}

		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != models.InquiryAccepted {
			return inquiryTransitionErr(current, models.InquiryConverted)
		}
		if current.Version != inquiry.Version {
			return fmt.Errorf("inquiry %s changed while converting: %w", id, domain.ErrConcurrentModification)
		}

		if err := s.bookings.insertLocked(ctx, booking, sc, resolved); err != nil {
			return err
		}

		now := s.clock.Now()
		current.Status = models.InquiryConverted
		current.ConvertedBookingID = booking.ID
		current.ConvertedAt = &now
		current.Date = resolved.Date
		current.SlotLabel = resolved.Label
		if err := s.repo.UpdateInquiryWithVersion(ctx, current); err != nil {
			return err
		}
		inquiry = current

		if req.IdempotencyKey != "" {
			return s.repo.SaveIdempotencyKey(ctx, req.IdempotencyKey, opConvertInquiry, booking.ID)
		}
		return nil
	})
	if err != nil {
		s.bookings.rejected(booking, opConvertInquiry, err)
		return nil, nil, err
	}
	if replayed != nil {
		converted, err := s.load(ctx, replayed.InquiryID)
		return converted, replayed, err
	}

	metrics.ObserveCommit(started)
	s.bookings.committed(booking, opConvertInquiry)
	s.bookings.publishEvent(events.EventBookingCreated, booking, req.Actor)
	s.publishEvent(events.EventInquiryConverted, inquiry)
	return inquiry, booking, nil
}

// ExpireStaleInquiries expires open inquiries older than the party policy TTL or whose date has passed.
func (s *InquiryService) ExpireStaleInquiries(ctx context.Context) (int, error) {
	now := s.clock.Now()
	policy, _, err := s.slots.settings.GetPolicy(ctx, models.VesselParty, now)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-time.Duration(policy.InquiryTTLHours) * time.Hour)
	today := now.In(s.clock.Location()).Format(models.DateLayout)

	stale, err := s.repo.ListStaleInquiries(ctx, cutoff, today, models.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		inquiry, err := s.update(ctx, stale[i].ID, models.InquiryExpired, func(*models.Inquiry) {})
		if err != nil {
			s.logger.Error().Err(err).Str("inquiry_id", stale[i].ID).Msg("Failed to expire inquiry")
			continue
		}
		expired++
		s.publishEvent(events.EventInquiryExpired, inquiry)
	}
	metrics.AddSwept("inquiry_expiry", expired)
	return expired, nil
}

func (s *InquiryService) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	return s.load(ctx, id)
}

func (s *InquiryService) DeleteInquiry(ctx context.Context, id string, actor models.Actor) error {
	if actor != models.ActorAdmin {
		return fmt.Errorf("inquiry delete by %s: %w", actor, domain.ErrForbidden)
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDeleteInquiry(ctx, id, s.clock.Now())
}

// update moves an inquiry to next inside a transaction with a version check.
func (s *InquiryService) update(ctx context.Context, id string, next models.InquiryStatus, apply func(*models.Inquiry)) (*models.Inquiry, error) {
	var inquiry *models.Inquiry
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		inq, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !inq.Status.CanTransitionTo(next) {
			return inquiryTransitionErr(inq, next)
		}
		inq.Status = next
		apply(inq)
		if err := s.repo.UpdateInquiryWithVersion(ctx, inq); err != nil {
			return err
		}
		inquiry = inq
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Error().Err(err).Str("inquiry_id", id).Msg("Invalid inquiry transition")
		}
		return nil, err
	}

	s.logger.Info().Str("inquiry_id", inquiry.ID).Str("status", string(inquiry.Status)).Msg("Inquiry updated")
	return inquiry, nil
}

func (s *InquiryService) load(ctx context.Context, id string) (*models.Inquiry, error) {
	inq, err := s.repo.GetInquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	if inq.IsDeleted {
		return nil, fmt.Errorf("inquiry %s: %w", id, domain.ErrNotFound)
	}
	return inq, nil
}

func (s *InquiryService) publishEvent(eventType string, inquiry *models.Inquiry) {
	if s.eventBus == nil {
		return
	}

	payload := events.InquiryEventPayload{
		InquiryID:     inquiry.ID,
		InquiryNumber: inquiry.InquiryNumber,
		CustomerName:  inquiry.CustomerName,
		CustomerPhone: inquiry.CustomerPhone,
		ResourceID:    inquiry.ResourceID,
		Date:          inquiry.Date,
		SlotLabel:     inquiry.SlotLabel,
		Status:        string(inquiry.Status),
		BookingID:     inquiry.ConvertedBookingID,
	}
	if inquiry.QuotedAmount != nil {
		payload.QuotedAmount = *inquiry.QuotedAmount
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("inquiry_id", inquiry.ID).Msg("publish event error")
	}
}

func inquiryTransitionErr(inq *models.Inquiry, to models.InquiryStatus) error {
	reason := ""
	if inq.Status == models.InquiryConverted {
		reason = "already converted to booking " + inq.ConvertedBookingID
	}
	return &domain.TransitionError{
		Entity: "inquiry",
		ID:     inq.ID,
		From:   string(inq.Status),
		To:     string(to),
		Reason: reason,
	}
}
