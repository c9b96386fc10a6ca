package models

type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	StatusConfirmed      BookingStatus = "CONFIRMED"
	StatusCancelled      BookingStatus = "CANCELLED"
	StatusCompleted      BookingStatus = "COMPLETED"
	StatusNoShow         BookingStatus = "NO_SHOW"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCancelled, StatusCompleted, StatusNoShow},
	StatusCancelled:      {},
	StatusCompleted:      {},
	StatusNoShow:         {},
}

// CanTransitionTo reports whether the ledger allows moving from s to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// HoldsCapacity reports whether bookings in this status count against capacity.
func (s BookingStatus) HoldsCapacity() bool {
	return s == StatusPendingPayment || s == StatusConfirmed
}

// Modifiable reports whether the date/time of the booking may still change.
func (s BookingStatus) Modifiable() bool {
	return s == StatusPendingPayment || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentVoid              PaymentStatus = "VOID"
)

type PaymentMode string

const (
	PaymentOnline  PaymentMode = "ONLINE"
	PaymentAtVenue PaymentMode = "AT_VENUE"
	PaymentCash    PaymentMode = "CASH"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentOnline, PaymentAtVenue, PaymentCash:
		return true
	}
	return false
}

// InitialStatus returns the ledger state a new booking starts in.
func (m PaymentMode) InitialStatus() BookingStatus {
	if m == PaymentOnline {
		return StatusPendingPayment
	}
	return StatusConfirmed
}

type CancellationReason string

const (
	ReasonCustomer       CancellationReason = "CUSTOMER"
	ReasonAdmin          CancellationReason = "ADMIN"
	ReasonWeather        CancellationReason = "WEATHER"
	ReasonOperator       CancellationReason = "OPERATOR"
	ReasonPaymentTimeout CancellationReason = "PAYMENT_TIMEOUT"
	ReasonPaymentFailed  CancellationReason = "PAYMENT_FAILED"
)

func (r CancellationReason) Valid() bool {
	switch r {
	case ReasonCustomer, ReasonAdmin, ReasonWeather, ReasonOperator, ReasonPaymentTimeout, ReasonPaymentFailed:
		return true
	}
	return false
}

// FullRefund reports whether the reason always refunds in full regardless of lead time.
func (r CancellationReason) FullRefund() bool {
	return r == ReasonWeather || r == ReasonOperator
}

type Actor string

const (
	ActorCustomer Actor = "CUSTOMER"
	ActorAdmin    Actor = "ADMIN"
	ActorSystem   Actor = "SYSTEM"
)

type InquiryStatus string

const (
	InquiryPending   InquiryStatus = "PENDING"
	InquiryQuoted    InquiryStatus = "QUOTED"
	InquiryAccepted  InquiryStatus = "ACCEPTED"
	InquiryRejected  InquiryStatus = "REJECTED"
	InquiryConverted InquiryStatus = "CONVERTED"
	InquiryExpired   InquiryStatus = "EXPIRED"
)

var inquiryTransitions = map[InquiryStatus][]InquiryStatus{
	InquiryPending:   {InquiryQuoted, InquiryRejected, InquiryExpired},
	InquiryQuoted:    {InquiryAccepted, InquiryRejected, InquiryExpired},
	InquiryAccepted:  {InquiryConverted},
	InquiryRejected:  {},
	InquiryConverted: {},
	InquiryExpired:   {},
}

func (s InquiryStatus) CanTransitionTo(next InquiryStatus) bool {
	for _, allowed := range inquiryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s InquiryStatus) IsTerminal() bool {
	return len(inquiryTransitions[s]) == 0
}
