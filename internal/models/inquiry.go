package models

import "time"

// Inquiry is a party-boat pre-booking negotiation.
type Inquiry struct {
	ID                 string          `json:"id"`
	InquiryNumber      string          `json:"inquiry_number"`
	CustomerID         string          `json:"customer_id,omitempty"`
	CustomerName       string          `json:"customer_name"`
	CustomerPhone      string          `json:"customer_phone"`
	CustomerEmail      string          `json:"customer_email,omitempty"`
	ResourceID         string          `json:"resource_id"`
	EventType          string          `json:"event_type"`
	Date               string          `json:"date"`
	SlotLabel          string          `json:"slot_label"`
	LocationType       string          `json:"location_type,omitempty"`
	NumberOfGuests     int             `json:"number_of_guests"`
	AddOns             []SelectedAddOn `json:"add_ons,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	Status             InquiryStatus   `json:"status"`
	QuotedAmount       *int64          `json:"quoted_amount,omitempty"`
	QuotedDetails      string          `json:"quoted_details,omitempty"`
	QuotedAt           *time.Time      `json:"quoted_at,omitempty"`
	RespondedAt        *time.Time      `json:"responded_at,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	ConvertedBookingID string          `json:"converted_booking_id,omitempty"`
	ConvertedAt        *time.Time      `json:"converted_at,omitempty"`
	IsDeleted          bool            `json:"is_deleted"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int64           `json:"version"`
}
