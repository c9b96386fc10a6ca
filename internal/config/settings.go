package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"prichal/internal/models"
)

// ApplyPolicyDefaults fills zero-valued policy fields. It is applied both to the
// seed settings from the config file and to runtime settings updates.
func ApplyPolicyDefaults(s *models.Settings) {
	for i := range s.Policies {
		p := &s.Policies[i]
		if p.SlotStepMinutes == 0 {
			p.SlotStepMinutes = models.DefaultSlotStepMinutes
		}
		if p.AdvanceBookingDays == 0 {
			p.AdvanceBookingDays = models.DefaultAdvanceBookingDays
		}
		if p.Tax.Mode == "" {
			p.Tax.Mode = models.TaxExclusive
		}
		if p.Cancellation.Unit == "" {
			if p.VesselType == models.VesselParty {
				p.Cancellation.Unit = models.BandDays
			} else {
				p.Cancellation.Unit = models.BandHours
			}
		}
		if p.PaymentExpiryMinutes == 0 {
			p.PaymentExpiryMinutes = models.DefaultPaymentExpiryMinutes
		}
		if p.InquiryTTLHours == 0 {
			p.InquiryTTLHours = models.DefaultInquiryTTLHours
		}
		if p.VesselType == models.VesselSpeed && p.MinDurationMinutes == 0 {
			p.MinDurationMinutes = p.SlotStepMinutes
		}
	}
	for i := range s.Coupons {
		s.Coupons[i].Code = strings.ToUpper(strings.TrimSpace(s.Coupons[i].Code))
	}
}

// ValidateSettings checks a settings snapshot once, so pricing and policy code can trust it.
func ValidateSettings(s *models.Settings) error {
	if s == nil {
		return errors.New("settings are required")
	}

	seen := make(map[string]bool)
	hasType := make(map[models.VesselType]bool)
	for i := range s.Policies {
		p := &s.Policies[i]
		if !p.VesselType.Valid() {
			return fmt.Errorf("policy %d: invalid vessel type %q", i, p.VesselType)
		}
		key := string(p.VesselType) + "@" + p.EffectiveFrom
		if seen[key] {
			return fmt.Errorf("duplicate policy for %s effective from %q", p.VesselType, p.EffectiveFrom)
		}
		seen[key] = true
		hasType[p.VesselType] = true

		if err := validatePolicy(p); err != nil {
			return fmt.Errorf("policy %s: %w", p.VesselType, err)
		}
	}
	for _, vt := range []models.VesselType{models.VesselSpeed, models.VesselParty} {
		if !hasType[vt] {
			return fmt.Errorf("policy for vessel type %s is required", vt)
		}
	}

	codes := make(map[string]bool)
	for _, c := range s.Coupons {
		if err := validateCoupon(c); err != nil {
			return fmt.Errorf("coupon %q: %w", c.Code, err)
		}
		code := strings.ToUpper(c.Code)
		if codes[code] {
			return fmt.Errorf("duplicate coupon code %q", c.Code)
		}
		codes[code] = true
	}

	for _, d := range s.ClosedDates {
		if _, err := time.Parse(models.DateLayout, d.Date); err != nil {
			return fmt.Errorf("closed date %q: %w", d.Date, err)
		}
	}
	return nil
}

func validatePolicy(p *models.Policy) error {
	if p.EffectiveFrom != "" {
		if _, err := time.Parse(models.DateLayout, p.EffectiveFrom); err != nil {
			return fmt.Errorf("effective_from: %w", err)
		}
	}

	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	open, closeAt, err := p.Hours.Bounds(day, time.UTC)
	if err != nil {
		return err
	}
	if !open.Before(closeAt) {
		return errors.New("operating hours must open before they close")
	}
	if p.SlotStepMinutes <= 0 {
		return errors.New("slot_step_minutes must be positive")
	}
	if p.AdvanceBookingDays < 0 {
		return errors.New("advance_booking_days must not be negative")
	}
	if p.Tax.Percent < 0 || p.Tax.Percent > 100 {
		return fmt.Errorf("tax percent %.2f out of range", p.Tax.Percent)
	}
	if p.Tax.Mode != models.TaxExclusive && p.Tax.Mode != models.TaxInclusive {
		return fmt.Errorf("unknown tax mode %q", p.Tax.Mode)
	}

	switch p.VesselType {
	case models.VesselSpeed:
		if p.MinDurationMinutes <= 0 || p.MinDurationMinutes%p.SlotStepMinutes != 0 {
			return fmt.Errorf("min_duration_minutes must be a positive multiple of %d", p.SlotStepMinutes)
		}
		if p.MinDurationMinutes%models.DurationStepMinutes != 0 || p.MaxDurationMinutes%models.DurationStepMinutes != 0 {
			return fmt.Errorf("durations must be multiples of %d minutes", models.DurationStepMinutes)
		}
		if p.MaxDurationMinutes != 0 && p.MaxDurationMinutes < p.MinDurationMinutes {
			return errors.New("max_duration_minutes is below min_duration_minutes")
		}
		if int(closeAt.Sub(open).Minutes()) < p.MinDurationMinutes {
			return errors.New("operating hours are shorter than the minimum duration")
		}
	case models.VesselParty:
		if len(p.PartySlots) == 0 {
			return errors.New("party_slots are required")
		}
		labels := make(map[string]bool)
		for _, s := range p.PartySlots {
			if s.Label == "" || s.DurationMinutes <= 0 {
				return fmt.Errorf("party slot %q needs a label and a positive duration", s.Label)
			}
			if labels[strings.ToLower(s.Label)] {
				return fmt.Errorf("duplicate party slot %q", s.Label)
			}
			labels[strings.ToLower(s.Label)] = true
			if _, err := models.ClockOn(day, s.Start, time.UTC); err != nil {
				return fmt.Errorf("party slot %q: %w", s.Label, err)
			}
		}
	}

	c := p.Cancellation
	if c.Unit != models.BandHours && c.Unit != models.BandDays {
		return fmt.Errorf("unknown cancellation unit %q", c.Unit)
	}
	if c.FreeBefore < 0 || c.PartialBefore < 0 {
		return errors.New("cancellation bands must not be negative")
	}
	// полосы должны быть непрерывными: бесплатная отмена раньше частичной
	if c.PartialBefore > c.FreeBefore {
		return errors.New("partial refund band must end before the free cancellation band")
	}
	if c.PartialPercent < 0 || c.PartialPercent > 100 {
		return fmt.Errorf("partial_percent %d out of range", c.PartialPercent)
	}

	for _, a := range p.Adjustments {
		if a.Label == "" {
			return errors.New("price adjustment needs a label")
		}
		if a.Percent <= -100 {
			return fmt.Errorf("adjustment %q would make the price non-positive", a.Label)
		}
	}
	if p.PaymentExpiryMinutes < 0 || p.InquiryTTLHours < 0 || p.MaxDateModifications < 0 {
		return errors.New("expiry and modification limits must not be negative")
	}
	return nil
}

func validateCoupon(c models.Coupon) error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("code is required")
	}
	switch c.DiscountType {
	case models.DiscountFixed:
		if c.Amount <= 0 {
			return errors.New("fixed coupon needs a positive amount")
		}
	case models.DiscountPercent:
		if c.Percent <= 0 || c.Percent > 100 {
			return errors.New("percent coupon needs a percent in (0, 100]")
		}
	default:
		return fmt.Errorf("unknown discount type %q", c.DiscountType)
	}
	for _, d := range []string{c.ValidFrom, c.ValidTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return fmt.Errorf("validity date %q: %w", d, err)
		}
	}
	if c.ValidFrom != "" && c.ValidTo != "" && c.ValidTo < c.ValidFrom {
		return errors.New("valid_to is before valid_from")
	}
	return nil
}
