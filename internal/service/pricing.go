package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prichal/internal/domain"
	"prichal/internal/metrics"
	"prichal/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// QuoteRequest is the input of a price quote.
// Quantity is boats (SPEED only); Guests is passengers for SPEED and guests for PARTY.
type QuoteRequest struct {
	ResourceID      string                 `json:"resource_id"`
	Slot            SlotSelection          `json:"slot"`
	Quantity        int                    `json:"quantity"`
	Guests          int                    `json:"guests"`
	AddOns          []models.SelectedAddOn `json:"add_ons,omitempty"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
	CustomerSegment string                 `json:"customer_segment,omitempty"`
}

type PricingService struct {
	slots    *AvailabilityService
	clock    domain.Clock
	currency string
	logger   *zerolog.Logger
}

func NewPricingService(slots *AvailabilityService, clock domain.Clock, currency string, logger *zerolog.Logger) *PricingService {
	if currency == "" {
		currency = "INR"
	}
	return &PricingService{
		slots:    slots,
		clock:    clock,
		currency: currency,
		logger:   logger,
	}
}

// Quote prices a prospective booking. It does not reserve anything.
func (s *PricingService) Quote(ctx context.Context, req QuoteRequest) (*models.PricingBreakdown, error) {
	breakdown, err := s.quote(ctx, req)
	if err != nil {
		metrics.IncQuote(domain.Code(err))
		return nil, err
	}
	metrics.IncQuote("ok")
	return breakdown, nil
}

func (s *PricingService) quote(ctx context.Context, req QuoteRequest) (*models.PricingBreakdown, error) {
	sc, err := s.slots.load(ctx, req.ResourceID, req.Slot.Date)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	slot, err := s.slots.resolveSlot(sc, req.Slot, now)
	if err != nil {
		return nil, err
	}
	if err := checkParty(sc.resource, req.Quantity, req.Guests); err != nil {
		return nil, err
	}
	breakdown, _, err := s.price(sc, slot, req, now)
	if err != nil {
		return nil, err
	}
	return &breakdown, nil
}

// price is the pure pricing function over a resolved slot. It also returns the priced add-on lines.
func (s *PricingService) price(sc *slotContext, slot models.Slot, req QuoteRequest, at time.Time) (models.PricingBreakdown, []models.SelectedAddOn, error) {
	r := sc.resource
	quantity := max(req.Quantity, 1)

	var base int64
	if r.Type == models.VesselParty {
		base = r.BasePrice
	} else {
		base = roundMinor(decimal.NewFromInt(r.HourlyRate).
			Mul(decimal.NewFromInt(int64(slot.DurationMinutes * quantity))).
			Div(decimal.NewFromInt(60)))
	}

	b := models.PricingBreakdown{
		BasePrice:     base,
		GSTPercent:    sc.policy.Tax.Percent,
		TaxMode:       sc.policy.Tax.Mode,
		Currency:      s.currency,
		PolicyVersion: sc.settings.Version,
		QuotedAt:      at,
	}
	if b.TaxMode == "" {
		b.TaxMode = models.TaxExclusive
	}

	if adj, ok := sc.policy.Adjustment(sc.day); ok {
		b.AdjustmentAmount = percentOf(base, adj.Percent)
		b.AdjustmentLabel = adj.Label
	}

	lines, addOnsTotal, err := priceAddOns(r, req.AddOns, req.Guests)
	if err != nil {
		return models.PricingBreakdown{}, nil, err
	}
	b.AddOnsTotal = addOnsTotal
	b.Subtotal = max(b.BasePrice+b.AdjustmentAmount+b.AddOnsTotal, 0)

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err := findCoupon(sc, code, req.CustomerSegment, b.Subtotal)
		if err != nil {
			return models.PricingBreakdown{}, nil, err
		}
		b.DiscountAmount = discountFor(coupon, b.Subtotal)
		value := coupon.Percent
		if coupon.DiscountType == models.DiscountFixed {
			value = float64(coupon.Amount)
		}
		b.Coupon = &models.AppliedCoupon{
			Code:           coupon.Code,
			DiscountType:   coupon.DiscountType,
			DiscountValue:  value,
			DiscountAmount: b.DiscountAmount,
		}
	}

	taxable := b.Subtotal - b.DiscountAmount
	if b.TaxMode == models.TaxInclusive {
		// Налог уже внутри суммы: выделяем его обратным счетом
		pct := decimal.NewFromFloat(b.GSTPercent)
		b.GSTAmount = roundMinor(decimal.NewFromInt(taxable).Mul(pct).Div(hundred.Add(pct)))
		b.FinalAmount = taxable
	} else {
		b.GSTAmount = percentOf(taxable, b.GSTPercent)
		b.FinalAmount = taxable + b.GSTAmount
	}
	b.CGSTAmount = b.GSTAmount / 2
	b.SGSTAmount = b.GSTAmount - b.CGSTAmount
	b.FinalAmount = max(b.FinalAmount, 0)
	return b, lines, nil
}

func priceAddOns(r *models.Resource, selected []models.SelectedAddOn, guests int) ([]models.SelectedAddOn, int64, error) {
	var total int64
	lines := make([]models.SelectedAddOn, 0, len(selected))
	for _, sel := range selected {
		addOn, ok := r.FindAddOn(sel.AddOnID)
		if !ok {
			return nil, 0, domain.Invalid("add_ons", "unknown add-on %q for %s", sel.AddOnID, r.ID)
		}
		if sel.Quantity < 0 {
			return nil, 0, domain.Invalid("add_ons", "negative quantity for %q", sel.AddOnID)
		}
		if sel.Quantity == 0 {
			sel.Quantity = 1
		}

		unit := addOn.Price
		if addOn.PriceType == models.AddOnPerPerson {
			unit = addOn.Price * int64(max(guests, 1))
		}
		sel.Name = addOn.Name
		sel.PriceType = addOn.PriceType
		sel.UnitPrice = addOn.Price
		sel.Total = unit * int64(sel.Quantity)
		total += sel.Total
		lines = append(lines, sel)
	}
	return lines, total, nil
}

// findCoupon returns the coupon only if every restriction holds; otherwise ErrCouponInvalid.
// Validity dates are checked against the booked day, not the moment of quoting.
func findCoupon(sc *slotContext, code, segment string, subtotal int64) (models.Coupon, error) {
	invalid := func(reason string) error {
		return fmt.Errorf("coupon %q %s: %w", code, reason, domain.ErrCouponInvalid)
	}

	c, ok := sc.settings.FindCoupon(code)
	if !ok {
		return models.Coupon{}, invalid("not found")
	}
	if !c.Active {
		return models.Coupon{}, invalid("is not active")
	}
	if (c.ValidFrom != "" && sc.date < c.ValidFrom) || (c.ValidTo != "" && sc.date > c.ValidTo) {
		return models.Coupon{}, invalid("is expired or not yet valid")
	}
	if len(c.VesselTypes) > 0 && !containsVessel(c.VesselTypes, sc.resource.Type) {
		return models.Coupon{}, invalid("does not apply to " + string(sc.resource.Type))
	}
	if len(c.ResourceIDs) > 0 && !containsFold(c.ResourceIDs, sc.resource.ID) {
		return models.Coupon{}, invalid("does not apply to " + sc.resource.ID)
	}
	if len(c.Segments) > 0 && !containsFold(c.Segments, segment) {
		return models.Coupon{}, invalid("does not apply to this customer")
	}
	if c.MinSubtotal > 0 && subtotal < c.MinSubtotal {
		return models.Coupon{}, invalid(fmt.Sprintf("requires a subtotal of at least %d", c.MinSubtotal))
	}
	return c, nil
}

func discountFor(c models.Coupon, subtotal int64) int64 {
	var discount int64
	if c.DiscountType == models.DiscountFixed {
		discount = c.Amount
	} else {
		discount = percentOf(subtotal, c.Percent)
		if c.MaxDiscount > 0 {
			discount = min(discount, c.MaxDiscount)
		}
	}
	return min(max(discount, 0), subtotal)
}

// checkParty validates boats and people against the resource limits.
func checkParty(r *models.Resource, quantity, guests int) error {
	if r.Type == models.VesselParty {
		return checkGuests(r, guests)
	}
	if quantity < 1 {
		return domain.Invalid("quantity", "at least one boat is required")
	}
	if quantity > r.Capacity() {
		return fmt.Errorf("%d boats requested, %s has %d: %w", quantity, r.ID, r.Capacity(), domain.ErrCapacityExceeded)
	}
	if guests < 0 || (r.CapacityMax > 0 && guests > r.CapacityMax*quantity) {
		return domain.Invalid("passengers", "%d passengers exceed %d per boat", guests, r.CapacityMax)
	}
	return nil
}

// percentOf rounds amount*pct/100 half up to the minor unit.
func percentOf(amount int64, pct float64) int64 {
	return roundMinor(decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(pct)).Div(hundred))
}

func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func containsVessel(list []models.VesselType, t models.VesselType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
