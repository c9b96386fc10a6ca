package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"prichal/internal/domain"
	"prichal/internal/models"
	"prichal/internal/report"
	"prichal/internal/service"

	"github.com/gorilla/mux"
)

const idempotencyHeader = "Idempotency-Key"

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Invalid("body", "invalid JSON body: %v", err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body for action endpoints.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, dst)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return v, nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Storage != nil {
		if err := s.svc.Storage.PingContext(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	resources, err := s.svc.Resources.ListResources(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	quantity, err := queryInt(r, "quantity")
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	duration, err := queryInt(r, "duration")
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}

	q := service.SlotQuery{
		ResourceID:      mux.Vars(r)["id"],
		Date:            strings.TrimSpace(r.URL.Query().Get("date")),
		Quantity:        quantity,
		DurationMinutes: duration,
	}
	slots, err := s.svc.Slots.GetSlots(r.Context(), q)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": q.ResourceID, "date": q.Date, "slots": slots})
}

func (s *HTTPServer) handleSetResourceStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.ResourceStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	if err := s.svc.Resources.SetStatus(r.Context(), mux.Vars(r)["id"], body.Status); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": mux.Vars(r)["id"], "status": body.Status})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	breakdown, err := s.svc.Pricing.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Pricing: *breakdown, Display: displayPricing(*breakdown)})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	req.Actor = principalFrom(r.Context()).actor

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingResponse(booking))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), models.BookingFilter{
		ResourceID: q.Get("resource_id"),
		Status:     models.BookingStatus(strings.ToUpper(q.Get("status"))),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
		CustomerID: q.Get("customer_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}

	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, newBookingResponse(&bookings[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Bookings.DeleteBooking(r.Context(), mux.Vars(r)["id"], principalFrom(r.Context()).actor); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransactionRef string `json:"transaction_ref"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	booking, err := s.svc.Bookings.ConfirmBooking(r.Context(), mux.Vars(r)["id"], body.TransactionRef, principalFrom(r.Context()).actor)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var opts service.CancelOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	p := principalFrom(r.Context())
	opts.Actor = p.actor

	booking, err := s.svc.Bookings.CancelBooking(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	if opts.OverrideRefund {
		s.logger.Warn().
			Str("booking_id", booking.ID).
			Str("client", p.name).
			Int("refund_percent", opts.RefundPercent).
			Msg("Refund override applied")
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.CompleteBooking(r.Context(), mux.Vars(r)["id"], principalFrom(r.Context()).actor)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.MarkNoShow(r.Context(), mux.Vars(r)["id"], principalFrom(r.Context()).actor)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req service.ModifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	req.Actor = principalFrom(r.Context()).actor

	booking, err := s.svc.Bookings.ModifyBookingDate(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount *int64 `json:"amount"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	booking, err := s.svc.Bookings.SetAdminOverride(r.Context(), mux.Vars(r)["id"], body.Amount, principalFrom(r.Context()).actor, body.Note)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(booking))
}

func (s *HTTPServer) handleRefundAudits(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.svc.Bookings.GetBooking(r.Context(), id); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	audits, err := s.svc.Audits.ListRefundAudits(r.Context(), id)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	if audits == nil {
		audits = []models.RefundAudit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": id, "audits": audits})
}

func (s *HTTPServer) handleSubmitInquiry(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitInquiryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	inquiry, err := s.svc.Inquiries.SubmitInquiry(r.Context(), req)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInquiryResponse(inquiry, nil, s.svc.Currency))
}

func (s *HTTPServer) handleGetInquiry(w http.ResponseWriter, r *http.Request) {
	inquiry, err := s.svc.Inquiries.GetInquiry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newInquiryResponse(inquiry, nil, s.svc.Currency))
}

func (s *HTTPServer) handleDeleteInquiry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Inquiries.DeleteInquiry(r.Context(), mux.Vars(r)["id"], principalFrom(r.Context()).actor); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleQuoteInquiry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount  int64  `json:"amount"`
		Details string `json:"details"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	inquiry, err := s.svc.Inquiries.QuoteInquiry(r.Context(), mux.Vars(r)["id"], body.Amount, body.Details, principalFrom(r.Context()).actor)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newInquiryResponse(inquiry, nil, s.svc.Currency))
}

func (s *HTTPServer) handleAcceptInquiry(w http.ResponseWriter, r *http.Request) {
	inquiry, err := s.svc.Inquiries.AcceptInquiry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newInquiryResponse(inquiry, nil, s.svc.Currency))
}

func (s *HTTPServer) handleRejectInquiry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	inquiry, err := s.svc.Inquiries.RejectInquiry(r.Context(), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newInquiryResponse(inquiry, nil, s.svc.Currency))
}

func (s *HTTPServer) handleConvertInquiry(w http.ResponseWriter, r *http.Request) {
	var req service.ConvertRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))
	req.Actor = principalFrom(r.Context()).actor

	inquiry, booking, err := s.svc.Inquiries.ConvertInquiry(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInquiryResponse(inquiry, booking, s.svc.Currency))
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings.GetSettings(r.Context())
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	updated, err := s.svc.Settings.UpdateSettings(r.Context(), settings, principalFrom(r.Context()).name)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	s.logger.Info().Int64("version", updated.Version).Str("updated_by", updated.UpdatedBy).Msg("Settings updated")
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleFailedNotifications(w http.ResponseWriter, r *http.Request) {
	if s.svc.Notifications == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tasks": []models.NotificationTask{}})
		return
	}
	tasks, err := s.svc.Notifications.FailedTasks(r.Context())
	if err != nil {
		writeServiceError(w, &s.logger, fmt.Errorf("list failed notifications: %w", err))
		return
	}
	if tasks == nil {
		tasks = []models.NotificationTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleBookingsReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := report.ParsePeriod(strings.TrimSpace(q.Get("date_from")), strings.TrimSpace(q.Get("date_to")))
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	resources, err := s.svc.Resources.ListResources(r.Context(), true)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}
	bookings, err := report.LoadBookings(r.Context(), s.svc.Bookings, period)
	if err != nil {
		writeServiceError(w, &s.logger, err)
		return
	}

	// Книга собирается в памяти, чтобы ошибка не оборвала уже начатый ответ
	var buf bytes.Buffer
	if err := report.WriteBookings(&buf, period, s.svc.Location, resources, bookings); err != nil {
		writeServiceError(w, &s.logger, fmt.Errorf("build bookings report: %w", err))
		return
	}

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", period.From.Format(models.DateLayout), period.To.Format(models.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	s.logger.Info().Str("file", fileName).Int("bookings", len(bookings)).Msg("Bookings report exported")
}
