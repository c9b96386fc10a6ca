package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
}

// FormatMoney renders minor units as a display string, e.g. 123450 INR -> "₹1,234.50".
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	fixed := decimal.New(amount, -2).StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}
	return sign + symbol + b.String() + "." + frac
}

type pricingDisplay struct {
	Subtotal string `json:"subtotal"`
	GST      string `json:"gst"`
	Discount string `json:"discount,omitempty"`
	Final    string `json:"final"`
	Payable  string `json:"payable"`
}

func displayPricing(p models.PricingBreakdown) pricingDisplay {
	d := pricingDisplay{
		Subtotal: FormatMoney(p.Subtotal, p.Currency),
		GST:      FormatMoney(p.GSTAmount, p.Currency),
		Final:    FormatMoney(p.FinalAmount, p.Currency),
		Payable:  FormatMoney(p.PayableAmount(), p.Currency),
	}
	if p.DiscountAmount > 0 {
		d.Discount = FormatMoney(p.DiscountAmount, p.Currency)
	}
	return d
}

type quoteResponse struct {
	Pricing models.PricingBreakdown `json:"pricing"`
	Display pricingDisplay          `json:"display"`
}

type bookingDisplay struct {
	pricingDisplay
	Refund string `json:"refund,omitempty"`
}

type bookingResponse struct {
	*models.Booking
	Display bookingDisplay `json:"display"`
}

func newBookingResponse(b *models.Booking) bookingResponse {
	d := bookingDisplay{pricingDisplay: displayPricing(b.Pricing)}
	if b.Cancellation != nil {
		d.Refund = FormatMoney(b.Cancellation.RefundAmount, b.Pricing.Currency)
	}
	return bookingResponse{Booking: b, Display: d}
}

type inquiryResponse struct {
	*models.Inquiry
	QuotedDisplay string           `json:"quoted_display,omitempty"`
	Booking       *bookingResponse `json:"booking,omitempty"`
}

func newInquiryResponse(inq *models.Inquiry, booking *models.Booking, currency string) inquiryResponse {
	resp := inquiryResponse{Inquiry: inq}
	if inq.QuotedAmount != nil {
		resp.QuotedDisplay = FormatMoney(*inq.QuotedAmount, currency)
	}
	if booking != nil {
		br := newBookingResponse(booking)
		resp.Booking = &br
	}
	return resp
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Code: code, Message: message})
}

// errorStatus maps an engine error kind to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfWindow),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrCouponInvalid),
		errors.Is(err, domain.ErrModificationWindowClosed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSlotUnavailable),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	statusCode := errorStatus(err)
	code := domain.Code(err)
	message := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		// Клиент видит общий конфликт, детали только в логе
		logger.Error().Err(err).Msg("Invalid state transition requested")
		message = "the record changed state, reload it and retry"
	case statusCode >= http.StatusInternalServerError:
		logger.Error().Err(err).Int("status", statusCode).Msg("Request failed")
		message = http.StatusText(statusCode)
	}
	writeError(w, statusCode, code, message)
}
