package models

import "time"

// Booking is a speed-boat or party-boat reservation owned by the ledger.
type Booking struct {
	ID                    string             `json:"id"`
	BookingNumber         string             `json:"booking_number"`
	CustomerID            string             `json:"customer_id"`
	CustomerName          string             `json:"customer_name"`
	CustomerPhone         string             `json:"customer_phone"`
	CustomerSegment       string             `json:"customer_segment,omitempty"`
	ResourceID            string             `json:"resource_id"`
	ResourceType          VesselType         `json:"resource_type"`
	Date                  string             `json:"date"`
	StartAt               time.Time          `json:"start_at"`
	DurationMinutes       int                `json:"duration_minutes"`
	SlotLabel             string             `json:"slot_label,omitempty"`
	Quantity              int                `json:"quantity"`
	Passengers            int                `json:"passengers,omitempty"`
	NumberOfGuests        int                `json:"number_of_guests,omitempty"`
	EventType             string             `json:"event_type,omitempty"`
	LocationType          string             `json:"location_type,omitempty"`
	AddOns                []SelectedAddOn    `json:"add_ons,omitempty"`
	CouponCode            string             `json:"coupon_code,omitempty"`
	Pricing               PricingBreakdown   `json:"pricing"`
	Status                BookingStatus      `json:"status"`
	PaymentStatus         PaymentStatus      `json:"payment_status"`
	PaymentMode           PaymentMode        `json:"payment_mode"`
	TransactionRef        string             `json:"transaction_ref,omitempty"`
	ExpiresAt             *time.Time         `json:"expires_at,omitempty"`
	Cancellation          *Cancellation      `json:"cancellation,omitempty"`
	DateModifications     []DateModification `json:"date_modifications,omitempty"`
	DateModificationCount int                `json:"date_modification_count"`
	InquiryID             string             `json:"inquiry_id,omitempty"`
	CreatedBy             Actor              `json:"created_by"`
	IsDeleted             bool               `json:"is_deleted"`
	DeletedAt             *time.Time         `json:"deleted_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	Version               int64              `json:"version"`
}

// EndAt is the exclusive end of the booked interval.
func (b *Booking) EndAt() time.Time {
	return b.StartAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Overlaps reports whether [start, end) intersects the booking interval.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt())
}

// PaymentExpired reports whether an unpaid online booking outlived its payment window.
func (b *Booking) PaymentExpired(now time.Time) bool {
	return b.Status == StatusPendingPayment && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// HoldsCapacityAt reports whether the booking counts against capacity at the instant now.
func (b *Booking) HoldsCapacityAt(now time.Time) bool {
	if b.IsDeleted || !b.Status.HoldsCapacity() {
		return false
	}
	return !b.PaymentExpired(now)
}

// Units returns how much capacity the booking consumes.
func (b *Booking) Units() int {
	if b.ResourceType == VesselParty {
		return 1
	}
	if b.Quantity <= 0 {
		return 1
	}
	return b.Quantity
}

// Cancellation records how and by whom a booking was cancelled.
type Cancellation struct {
	Reason        CancellationReason `json:"reason"`
	Actor         Actor              `json:"actor"`
	CancelledAt   time.Time          `json:"cancelled_at"`
	RefundPercent int                `json:"refund_percent"`
	RefundAmount  int64              `json:"refund_amount"`
	Band          string             `json:"band,omitempty"`
	Overridden    bool               `json:"overridden"`
	Note          string             `json:"note,omitempty"`
}

// DateModification is one successful reschedule of a booking.
type DateModification struct {
	FromDate       string    `json:"from_date"`
	FromStart      time.Time `json:"from_start"`
	FromSlot       string    `json:"from_slot,omitempty"`
	ToDate         string    `json:"to_date"`
	ToStart        time.Time `json:"to_start"`
	ToSlot         string    `json:"to_slot,omitempty"`
	PreviousAmount int64     `json:"previous_amount"`
	NewAmount      int64     `json:"new_amount"`
	ModifiedBy     Actor     `json:"modified_by"`
	ModifiedAt     time.Time `json:"modified_at"`
}

// Refund is the resolved refund for a cancellation.
type Refund struct {
	Percent    int    `json:"percent"`
	Amount     int64  `json:"amount"`
	Band       string `json:"band"`
	Overridden bool   `json:"overridden"`
}

// RefundAudit is an append-only trail of refunds and admin money overrides.
type RefundAudit struct {
	ID         int64     `json:"id"`
	BookingID  string    `json:"booking_id"`
	Action     string    `json:"action"`
	Actor      Actor     `json:"actor"`
	Percent    int       `json:"percent"`
	Amount     int64     `json:"amount"`
	Overridden bool      `json:"overridden"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	AuditRefund         = "refund"
	AuditRefundOverride = "refund_override"
	AuditAmountOverride = "amount_override"
)

// BookingFilter narrows admin listings.
type BookingFilter struct {
	ResourceID string
	Status     BookingStatus
	DateFrom   string
	DateTo     string
	CustomerID string
	Limit      int
	Offset     int
}
