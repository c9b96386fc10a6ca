package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/rs/zerolog"
)

// SlotQuery asks for bookable slots of a resource on a day.
// Quantity is boats for SPEED vessels and guests for PARTY vessels.
type SlotQuery struct {
	ResourceID      string
	Date            string
	Quantity        int
	DurationMinutes int
}

// SlotSelection names one slot: a start time for SPEED vessels or a slot label for PARTY vessels.
type SlotSelection struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time,omitempty"`
	SlotLabel       string `json:"slot_label,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// slotContext is everything a slot computation reads for one resource and day.
type slotContext struct {
	resource *models.Resource
	settings *models.Settings
	policy   models.Policy
	day      time.Time
	date     string
}

type AvailabilityService struct {
	catalog  domain.ResourceCatalog
	settings domain.SettingsProvider
	repo     domain.Repository
	clock    domain.Clock
	logger   *zerolog.Logger
}

func NewAvailabilityService(catalog domain.ResourceCatalog, settings domain.SettingsProvider, repo domain.Repository, clock domain.Clock, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		catalog:  catalog,
		settings: settings,
		repo:     repo,
		clock:    clock,
		logger:   logger,
	}
}

// GetSlots lists the slots that can still take the requested quantity.
// The result is advisory; commits re-check capacity under the resource lock.
func (s *AvailabilityService) GetSlots(ctx context.Context, q SlotQuery) ([]models.Slot, error) {
	sc, err := s.load(ctx, q.ResourceID, q.Date)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.checkWindow(sc, now); err != nil {
		return nil, err
	}

	if q.Quantity < 0 {
		return nil, domain.Invalid("quantity", "must not be negative")
	}

	units := 1
	switch sc.resource.Type {
	case models.VesselSpeed:
		if q.Quantity > 0 {
			units = q.Quantity
		}
		if units > sc.resource.Capacity() {
			return nil, fmt.Errorf("%d boats requested, %s has %d: %w", units, sc.resource.ID, sc.resource.Capacity(), domain.ErrCapacityExceeded)
		}
	case models.VesselParty:
		if q.Quantity > 0 {
			if err := checkGuests(sc.resource, q.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if closed, reason := sc.settings.ClosedOn(sc.resource.Type, sc.day); closed {
		s.logger.Debug().Str("resource_id", sc.resource.ID).Str("date", sc.date).Str("reason", reason).Msg("Calendar closed")
		return []models.Slot{}, nil
	}

	candidates, err := s.candidates(sc, q.DurationMinutes)
	if err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListActiveBookings(ctx, sc.resource.ID, sc.date)
	if err != nil {
		return nil, err
	}

	slots := make([]models.Slot, 0, len(candidates))
	for _, slot := range candidates {
		if slot.StartAt.Before(now) {
			continue
		}
		remaining := remainingUnits(sc.resource, bookings, slot.StartAt, slot.EndAt, now, "")
		if remaining <= 0 || remaining < units {
			continue
		}
		if sc.resource.Type == models.VesselParty {
			slot.RemainingCapacity = sc.resource.CapacityMax
		} else {
			slot.RemainingCapacity = remaining
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// load resolves the resource, settings snapshot and effective policy for a day.
func (s *AvailabilityService) load(ctx context.Context, resourceID, date string) (*slotContext, error) {
	resource, err := s.catalog.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(date), s.clock.Location())
	if err != nil {
		return nil, domain.Invalid("date", "expected YYYY-MM-DD, got %q", date)
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	policy, ok := settings.PolicyFor(resource.Type, day)
	if !ok {
		return nil, fmt.Errorf("no %s policy effective on %s: %w", resource.Type, date, domain.ErrNotFound)
	}
	return &slotContext{
		resource: resource,
		settings: settings,
		policy:   policy.ForResource(resource),
		day:      day,
		date:     day.Format(models.DateLayout),
	}, nil
}

// checkWindow accepts days from today to today + advance booking days.
func (s *AvailabilityService) checkWindow(sc *slotContext, now time.Time) error {
	y, m, d := now.In(s.clock.Location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.clock.Location())
	last := today.AddDate(0, 0, sc.policy.AdvanceBookingDays)
	if sc.day.Before(today) || sc.day.After(last) {
		return fmt.Errorf("%s not in [%s, %s]: %w", sc.date, today.Format(models.DateLayout), last.Format(models.DateLayout), domain.ErrOutOfWindow)
	}
	return nil
}

func (s *AvailabilityService) candidates(sc *slotContext, durationMinutes int) ([]models.Slot, error) {
	if sc.resource.Type == models.VesselParty {
		slots := make([]models.Slot, 0, len(sc.policy.PartySlots))
		for _, ps := range sc.policy.PartySlots {
			slot, err := partySlot(sc, ps, s.clock.Location())
			if err != nil {
				return nil, err
			}
			slots = append(slots, slot)
		}
		return slots, nil
	}

	duration, err := speedDuration(sc.policy, durationMinutes)
	if err != nil {
		return nil, err
	}
	open, closeAt, err := sc.policy.Hours.Bounds(sc.day, s.clock.Location())
	if err != nil {
		return nil, err
	}
	step := time.Duration(sc.policy.SlotStepMinutes) * time.Minute
	length := time.Duration(duration) * time.Minute

	var slots []models.Slot
	for start := open; !start.Add(length).After(closeAt); start = start.Add(step) {
		slots = append(slots, models.Slot{
			Date:            sc.date,
			StartAt:         start,
			EndAt:           start.Add(length),
			StartTime:       start.Format(models.TimeLayout),
			DurationMinutes: duration,
		})
	}
	return slots, nil
}

// resolveSlot checks that sel names a real candidate slot that is still ahead of now.
func (s *AvailabilityService) resolveSlot(sc *slotContext, sel SlotSelection, now time.Time) (models.Slot, error) {
	if err := s.checkWindow(sc, now); err != nil {
		return models.Slot{}, err
	}
	if closed, reason := sc.settings.ClosedOn(sc.resource.Type, sc.day); closed {
		return models.Slot{}, fmt.Errorf("%s closed on %s (%s): %w", sc.resource.ID, sc.date, reason, domain.ErrSlotUnavailable)
	}

	var slot models.Slot
	if sc.resource.Type == models.VesselParty {
		ps, ok := sc.policy.PartySlot(sel.SlotLabel)
		if !ok {
			return models.Slot{}, domain.Invalid("slot_label", "unknown party slot %q", sel.SlotLabel)
		}
		var err error
		if slot, err = partySlot(sc, ps, s.clock.Location()); err != nil {
			return models.Slot{}, err
		}
	} else {
		duration, err := speedDuration(sc.policy, sel.DurationMinutes)
		if err != nil {
			return models.Slot{}, err
		}
		start, err := models.ClockOn(sc.day, sel.StartTime, s.clock.Location())
		if err != nil {
			return models.Slot{}, domain.Invalid("start_time", "expected HH:MM, got %q", sel.StartTime)
		}
		open, closeAt, err := sc.policy.Hours.Bounds(sc.day, s.clock.Location())
		if err != nil {
			return models.Slot{}, err
		}
		end := start.Add(time.Duration(duration) * time.Minute)
		step := time.Duration(sc.policy.SlotStepMinutes) * time.Minute
		if start.Before(open) || end.After(closeAt) || start.Sub(open)%step != 0 {
			return models.Slot{}, domain.Invalid("start_time", "%s for %d minutes is not a bookable start", sel.StartTime, duration)
		}
		slot = models.Slot{
			Date:            sc.date,
			StartAt:         start,
			EndAt:           end,
			StartTime:       start.Format(models.TimeLayout),
			DurationMinutes: duration,
		}
	}

	if slot.StartAt.Before(now) {
		return models.Slot{}, fmt.Errorf("slot %s %s already started: %w", sc.date, slot.StartTime, domain.ErrOutOfWindow)
	}
	return slot, nil
}

// ensureFree re-runs the capacity check for a commit. ctx must carry the WithLock transaction.
func (s *AvailabilityService) ensureFree(ctx context.Context, resource *models.Resource, slot models.Slot, units int, excludeID string) error {
	bookings, err := s.repo.ListActiveBookings(ctx, resource.ID, slot.Date)
	if err != nil {
		return err
	}
	remaining := remainingUnits(resource, bookings, slot.StartAt, slot.EndAt, s.clock.Now(), excludeID)
	if remaining < units {
		return fmt.Errorf("%s %s %s: %d of %d units left: %w", resource.ID, slot.Date, slot.StartTime, max(remaining, 0), units, domain.ErrSlotUnavailable)
	}
	return nil
}

// remainingUnits is the capacity left in [start, end) after bookings that still hold it at now.
func remainingUnits(resource *models.Resource, bookings []models.Booking, start, end, now time.Time, excludeID string) int {
	used := 0
	for i := range bookings {
		b := &bookings[i]
		if b.ID == excludeID || !b.HoldsCapacityAt(now) || !b.Overlaps(start, end) {
			continue
		}
		used += b.Units()
	}
	return resource.Capacity() - used
}

func partySlot(sc *slotContext, ps models.PartySlot, loc *time.Location) (models.Slot, error) {
	start, err := models.ClockOn(sc.day, ps.Start, loc)
	if err != nil {
		return models.Slot{}, fmt.Errorf("party slot %s: %w", ps.Label, err)
	}
	return models.Slot{
		Date:            sc.date,
		StartAt:         start,
		EndAt:           start.Add(time.Duration(ps.DurationMinutes) * time.Minute),
		StartTime:       start.Format(models.TimeLayout),
		DurationMinutes: ps.DurationMinutes,
		Label:           ps.Label,
	}, nil
}

// speedDuration applies the policy minimum when no duration is requested.
func speedDuration(policy models.Policy, requested int) (int, error) {
	if requested == 0 {
		requested = policy.MinDurationMinutes
	}
	switch {
	case requested <= 0:
		return 0, domain.Invalid("duration_minutes", "must be positive")
	case requested%models.DurationStepMinutes != 0:
		return 0, domain.Invalid("duration_minutes", "must be a multiple of %d minutes", models.DurationStepMinutes)
	case requested < policy.MinDurationMinutes:
		return 0, domain.Invalid("duration_minutes", "minimum is %d minutes", policy.MinDurationMinutes)
	case policy.MaxDurationMinutes > 0 && requested > policy.MaxDurationMinutes:
		return 0, domain.Invalid("duration_minutes", "maximum is %d minutes", policy.MaxDurationMinutes)
	}
	return requested, nil
}

func checkGuests(resource *models.Resource, guests int) error {
	if guests < resource.CapacityMin || guests > resource.CapacityMax {
		return domain.Invalid("number_of_guests", "%d guests outside %d-%d", guests, resource.CapacityMin, resource.CapacityMax)
	}
	return nil
}
