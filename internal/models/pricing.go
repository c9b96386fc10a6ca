package models

import "time"

// PricingBreakdown is computed once when a booking is committed and stored as is.
// All amounts are integer minor currency units.
type PricingBreakdown struct {
	BasePrice           int64          `json:"base_price"`
	AdjustmentAmount    int64          `json:"adjustment_amount"`
	AdjustmentLabel     string         `json:"adjustment_label,omitempty"`
	AddOnsTotal         int64          `json:"add_ons_total"`
	Subtotal            int64          `json:"subtotal"`
	GSTPercent          float64        `json:"gst_percent"`
	TaxMode             TaxMode        `json:"tax_mode"`
	GSTAmount           int64          `json:"gst_amount"`
	CGSTAmount          int64          `json:"cgst_amount"`
	SGSTAmount          int64          `json:"sgst_amount"`
	DiscountAmount      int64          `json:"discount_amount"`
	Coupon              *AppliedCoupon `json:"coupon,omitempty"`
	AdminOverrideAmount *int64         `json:"admin_override_amount,omitempty"`
	FinalAmount         int64          `json:"final_amount"`
	Currency            string         `json:"currency"`
	PolicyVersion       int64          `json:"policy_version"`
	QuotedAt            time.Time      `json:"quoted_at"`
}

// AppliedCoupon snapshots the coupon terms used for a quote.
type AppliedCoupon struct {
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountValue  float64      `json:"discount_value"`
	DiscountAmount int64        `json:"discount_amount"`
}

// PayableAmount is the amount used for display and refunds.
// An admin override short-circuits the computed final amount.
func (p PricingBreakdown) PayableAmount() int64 {
	if p.AdminOverrideAmount != nil {
		return *p.AdminOverrideAmount
	}
	return p.FinalAmount
}

// Complete reports whether the mandatory money fields are consistent with each other.
func (p PricingBreakdown) Complete() bool {
	if p.FinalAmount < 0 || p.Subtotal < 0 || p.GSTAmount < 0 {
		return false
	}
	expected := p.Subtotal - p.DiscountAmount
	if p.TaxMode != TaxInclusive {
		expected += p.GSTAmount
	}
	if expected < 0 {
		expected = 0
	}
	return expected == p.FinalAmount
}
