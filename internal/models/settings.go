package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type TaxMode string

const (
	TaxExclusive TaxMode = "exclusive"
	TaxInclusive TaxMode = "inclusive"
)

type TaxConfig struct {
	Percent float64 `yaml:"percent" toml:"percent" json:"percent"`
	Mode    TaxMode `yaml:"mode" toml:"mode" json:"mode"`
}

// OperatingHours is a daily open/close window in local time, "HH:MM".
type OperatingHours struct {
	Open  string `yaml:"open" toml:"open" json:"open"`
	Close string `yaml:"close" toml:"close" json:"close"`
}

// Bounds resolves the window on the given calendar day in loc.
func (h OperatingHours) Bounds(day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	open, err := ClockOn(day, h.Open, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("operating hours open: %w", err)
	}
	closeAt, err := ClockOn(day, h.Close, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("operating hours close: %w", err)
	}
	return open, closeAt, nil
}

// ClockOn combines the calendar day of day with an "HH:MM" clock value.
func ClockOn(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// PartySlot is one of the fixed party-boat slots, e.g. "Sunset 17:00-20:00".
type PartySlot struct {
	Label           string `yaml:"label" toml:"label" json:"label"`
	Start           string `yaml:"start" toml:"start" json:"start"`
	DurationMinutes int    `yaml:"duration_minutes" toml:"duration_minutes" json:"duration_minutes"`
}

type BandUnit string

const (
	BandHours BandUnit = "hours"
	BandDays  BandUnit = "days"
)

func (u BandUnit) Duration() time.Duration {
	if u == BandDays {
		return 24 * time.Hour
	}
	return time.Hour
}

// CancellationPolicy describes refund bands ending at the booking start:
// lead >= FreeBefore refunds 100%, lead >= PartialBefore refunds PartialPercent, otherwise nothing.
type CancellationPolicy struct {
	Unit           BandUnit `yaml:"unit" toml:"unit" json:"unit"`
	FreeBefore     int      `yaml:"free_before" toml:"free_before" json:"free_before"`
	PartialBefore  int      `yaml:"partial_before" toml:"partial_before" json:"partial_before"`
	PartialPercent int      `yaml:"partial_percent" toml:"partial_percent" json:"partial_percent"`
}

// PriceAdjustment is a weekday and/or seasonal surcharge (positive) or discount (negative).
// From/To are "MM-DD" and may wrap the new year.
type PriceAdjustment struct {
	Label    string   `yaml:"label" toml:"label" json:"label"`
	Weekdays []string `yaml:"weekdays" toml:"weekdays" json:"weekdays,omitempty"`
	From     string   `yaml:"from" toml:"from" json:"from,omitempty"`
	To       string   `yaml:"to" toml:"to" json:"to,omitempty"`
	Percent  float64  `yaml:"percent" toml:"percent" json:"percent"`
}

// Matches reports whether the adjustment applies to the calendar day.
func (a PriceAdjustment) Matches(day time.Time) bool {
	if len(a.Weekdays) > 0 {
		wd := strings.ToLower(day.Weekday().String())
		found := false
		for _, w := range a.Weekdays {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == wd || (len(w) >= 3 && strings.HasPrefix(wd, w)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if a.From == "" && a.To == "" {
		return true
	}
	md := day.Format("01-02")
	from, to := a.From, a.To
	if from == "" {
		from = "01-01"
	}
	if to == "" {
		to = "12-31"
	}
	if from <= to {
		return md >= from && md <= to
	}
	return md >= from || md <= to
}

// Policy is the effective-dated configuration for one vessel type.
type Policy struct {
	VesselType           VesselType         `yaml:"vessel_type" json:"vessel_type"`
	EffectiveFrom        string             `yaml:"effective_from" json:"effective_from,omitempty"`
	Hours                OperatingHours     `yaml:"operating_hours" json:"operating_hours"`
	SlotStepMinutes      int                `yaml:"slot_step_minutes" json:"slot_step_minutes"`
	MinDurationMinutes   int                `yaml:"min_duration_minutes" json:"min_duration_minutes"`
	MaxDurationMinutes   int                `yaml:"max_duration_minutes" json:"max_duration_minutes"`
	PartySlots           []PartySlot        `yaml:"party_slots" json:"party_slots,omitempty"`
	AdvanceBookingDays   int                `yaml:"advance_booking_days" json:"advance_booking_days"`
	Tax                  TaxConfig          `yaml:"tax" json:"tax"`
	Cancellation         CancellationPolicy `yaml:"cancellation" json:"cancellation"`
	Adjustments          []PriceAdjustment  `yaml:"adjustments" json:"adjustments,omitempty"`
	PaymentExpiryMinutes int                `yaml:"payment_expiry_minutes" json:"payment_expiry_minutes"`
	InquiryTTLHours      int                `yaml:"inquiry_ttl_hours" json:"inquiry_ttl_hours"`
	MaxDateModifications int                `yaml:"max_date_modifications" json:"max_date_modifications"`
}

// ForResource overlays the resource-level overrides on top of the policy.
func (p Policy) ForResource(r *Resource) Policy {
	if r == nil {
		return p
	}
	if r.Tax != nil {
		p.Tax = *r.Tax
	}
	if r.Hours != nil {
		p.Hours = *r.Hours
	}
	if r.MinDuration > 0 {
		p.MinDurationMinutes = r.MinDuration
	}
	if r.MaxDuration > 0 {
		p.MaxDurationMinutes = r.MaxDuration
	}
	if r.AdvanceDays > 0 {
		p.AdvanceBookingDays = r.AdvanceDays
	}
	return p
}

// PartySlot returns the configured slot with the given label.
func (p Policy) PartySlot(label string) (PartySlot, bool) {
	for _, s := range p.PartySlots {
		if strings.EqualFold(s.Label, strings.TrimSpace(label)) {
			return s, true
		}
	}
	return PartySlot{}, false
}

// Adjustment returns the first adjustment matching the day in policy order.
func (p Policy) Adjustment(day time.Time) (PriceAdjustment, bool) {
	for _, a := range p.Adjustments {
		if a.Matches(day) {
			return a, true
		}
	}
	return PriceAdjustment{}, false
}

type DiscountType string

const (
	DiscountFixed   DiscountType = "FIXED"
	DiscountPercent DiscountType = "PERCENT"
)

// Coupon is an authored discount rule. Amount is used for FIXED, Percent for PERCENT.
type Coupon struct {
	Code         string       `yaml:"code" json:"code"`
	DiscountType DiscountType `yaml:"discount_type" json:"discount_type"`
	Amount       int64        `yaml:"amount" json:"amount,omitempty"`
	Percent      float64      `yaml:"percent" json:"percent,omitempty"`
	MaxDiscount  int64        `yaml:"max_discount" json:"max_discount,omitempty"`
	MinSubtotal  int64        `yaml:"min_subtotal" json:"min_subtotal,omitempty"`
	ValidFrom    string       `yaml:"valid_from" json:"valid_from,omitempty"`
	ValidTo      string       `yaml:"valid_to" json:"valid_to,omitempty"`
	VesselTypes  []VesselType `yaml:"vessel_types" json:"vessel_types,omitempty"`
	ResourceIDs  []string     `yaml:"resource_ids" json:"resource_ids,omitempty"`
	Segments     []string     `yaml:"segments" json:"segments,omitempty"`
	Active       bool         `yaml:"active" json:"active"`
}

// ClosedDate marks a calendar day closed for all vessel types or the listed ones.
type ClosedDate struct {
	Date        string       `yaml:"date" json:"date"`
	VesselTypes []VesselType `yaml:"vessel_types" json:"vessel_types,omitempty"`
	Reason      string       `yaml:"reason" json:"reason,omitempty"`
}

// Settings is one immutable version of the engine configuration.
type Settings struct {
	Version     int64        `yaml:"-" json:"version"`
	Policies    []Policy     `yaml:"policies" json:"policies"`
	Coupons     []Coupon     `yaml:"coupons" json:"coupons,omitempty"`
	ClosedDates []ClosedDate `yaml:"closed_dates" json:"closed_dates,omitempty"`
	UpdatedBy   string       `yaml:"-" json:"updated_by,omitempty"`
	UpdatedAt   time.Time    `yaml:"-" json:"updated_at"`
}

// PolicyFor returns the policy for the vessel type effective on the given day:
// the one with the latest EffectiveFrom not after day.
func (s *Settings) PolicyFor(t VesselType, day time.Time) (Policy, bool) {
	dayStr := day.Format(DateLayout)
	var (
		best  Policy
		found bool
	)
	for _, p := range s.Policies {
		if p.VesselType != t {
			continue
		}
		if p.EffectiveFrom != "" && p.EffectiveFrom > dayStr {
			continue
		}
		if !found || p.EffectiveFrom > best.EffectiveFrom {
			best = p
			found = true
		}
	}
	return best, found
}

// FindCoupon looks a coupon up by case-insensitive code.
func (s *Settings) FindCoupon(code string) (Coupon, bool) {
	code = strings.TrimSpace(code)
	for _, c := range s.Coupons {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return Coupon{}, false
}

// ClosedOn reports whether the calendar is closed for the vessel type on day.
func (s *Settings) ClosedOn(t VesselType, day time.Time) (bool, string) {
	dayStr := day.Format(DateLayout)
	for _, c := range s.ClosedDates {
		if c.Date != dayStr {
			continue
		}
		if len(c.VesselTypes) == 0 {
			return true, c.Reason
		}
		for _, vt := range c.VesselTypes {
			if vt == t {
				return true, c.Reason
			}
		}
	}
	return false, ""
}
