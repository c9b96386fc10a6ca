package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"id", "booking_number", "customer_id", "customer_name", "customer_phone", "customer_segment",
	"resource_id", "resource_type", "date", "start_at", "duration_minutes", "slot_label",
	"quantity", "passengers", "number_of_guests", "event_type", "location_type", "add_ons",
	"coupon_code", "pricing", "status", "payment_status", "payment_mode", "transaction_ref",
	"expires_at", "cancellation", "date_modifications", "date_modification_count", "inquiry_id",
	"created_by", "is_deleted", "deleted_at", "created_at", "updated_at", "version",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// bookingDocs holds the JSON-encoded parts of a booking row.
type bookingDocs struct {
	addOns        string
	pricing       string
	cancellation  sql.NullString
	modifications string
}

func encodeBookingDocs(b *models.Booking) (bookingDocs, error) {
	var docs bookingDocs

	addOns := b.AddOns
	if addOns == nil {
		addOns = []models.SelectedAddOn{}
	}
	raw, err := json.Marshal(addOns)
	if err != nil {
		return docs, fmt.Errorf("failed to encode add-ons: %w", err)
	}
	docs.addOns = string(raw)

	if raw, err = json.Marshal(b.Pricing); err != nil {
		return docs, fmt.Errorf("failed to encode pricing: %w", err)
	}
	docs.pricing = string(raw)

	if b.Cancellation != nil {
		if raw, err = json.Marshal(b.Cancellation); err != nil {
			return docs, fmt.Errorf("failed to encode cancellation: %w", err)
		}
		docs.cancellation = sql.NullString{String: string(raw), Valid: true}
	}

	mods := b.DateModifications
	if mods == nil {
		mods = []models.DateModification{}
	}
	if raw, err = json.Marshal(mods); err != nil {
		return docs, fmt.Errorf("failed to encode date modifications: %w", err)
	}
	docs.modifications = string(raw)

	return docs, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                                  models.Booking
		customerID, segment, slotLabel, eventType, locType sql.NullString
		couponCode, txRef, inquiryID                       sql.NullString
		expiresAt, deletedAt                               sql.NullTime
		docs                                               bookingDocs
	)

	err := row.Scan(
		&b.ID, &b.BookingNumber, &customerID, &b.CustomerName, &b.CustomerPhone, &segment,
		&b.ResourceID, &b.ResourceType, &b.Date, &b.StartAt, &b.DurationMinutes, &slotLabel,
		&b.Quantity, &b.Passengers, &b.NumberOfGuests, &eventType, &locType, &docs.addOns,
		&couponCode, &docs.pricing, &b.Status, &b.PaymentStatus, &b.PaymentMode, &txRef,
		&expiresAt, &docs.cancellation, &docs.modifications, &b.DateModificationCount, &inquiryID,
		&b.CreatedBy, &b.IsDeleted, &deletedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.CustomerID = customerID.String
	b.CustomerSegment = segment.String
	b.SlotLabel = slotLabel.String
	b.EventType = eventType.String
	b.LocationType = locType.String
	b.CouponCode = couponCode.String
	b.TransactionRef = txRef.String
	b.InquiryID = inquiryID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		b.DeletedAt = &t
	}

	if err := json.Unmarshal([]byte(docs.addOns), &b.AddOns); err != nil {
		return nil, fmt.Errorf("failed to decode add-ons of booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(docs.pricing), &b.Pricing); err != nil {
		return nil, fmt.Errorf("failed to decode pricing of booking %s: %w", b.ID, err)
	}
	if docs.cancellation.Valid {
		var c models.Cancellation
		if err := json.Unmarshal([]byte(docs.cancellation.String), &c); err != nil {
			return nil, fmt.Errorf("failed to decode cancellation of booking %s: %w", b.ID, err)
		}
		b.Cancellation = &c
	}
	if err := json.Unmarshal([]byte(docs.modifications), &b.DateModifications); err != nil {
		return nil, fmt.Errorf("failed to decode date modifications of booking %s: %w", b.ID, err)
	}
	if len(b.AddOns) == 0 {
		b.AddOns = nil
	}
	if len(b.DateModifications) == 0 {
		b.DateModifications = nil
	}

	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateBooking inserts a new booking with version 1.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if !booking.Pricing.Complete() {
		return fmt.Errorf("booking %s has an incomplete pricing breakdown", booking.ID)
	}
	docs, err := encodeBookingDocs(booking)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = booking.CreatedAt
	booking.Version = 1

	query, args, err := db.sb.Insert("bookings").
		Columns(append(bookingColumns[:len(bookingColumns):len(bookingColumns)], "end_at", "final_amount")...).
		Values(
			booking.ID, booking.BookingNumber, nullString(booking.CustomerID), booking.CustomerName, booking.CustomerPhone, nullString(booking.CustomerSegment),
			booking.ResourceID, booking.ResourceType, booking.Date, booking.StartAt.UTC(), booking.DurationMinutes, nullString(booking.SlotLabel),
			booking.Quantity, booking.Passengers, booking.NumberOfGuests, nullString(booking.EventType), nullString(booking.LocationType), docs.addOns,
			nullString(booking.CouponCode), docs.pricing, booking.Status, booking.PaymentStatus, booking.PaymentMode, nullString(booking.TransactionRef),
			nullTime(booking.ExpiresAt), docs.cancellation, docs.modifications, booking.DateModificationCount, nullString(booking.InquiryID),
			booking.CreatedBy, booking.IsDeleted, nullTime(booking.DeletedAt), booking.CreatedAt.UTC(), booking.UpdatedAt.UTC(), booking.Version,
			booking.EndAt().UTC(), booking.Pricing.PayableAmount(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build booking insert: %w", err)
	}

	if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return storageErr("create booking", err)
	}
	return nil
}

// GetBooking returns a booking by id, including soft-deleted ones.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query, args, err := db.sb.Select(bookingColumns...).From("bookings").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build booking select: %w", err)
	}

	booking, err := scanBooking(db.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get booking", err)
	}
	return booking, nil
}

// UpdateBookingWithVersion writes the mutable booking fields when the stored
// version still matches booking.Version, then bumps the version.
func (db *DB) UpdateBookingWithVersion(ctx context.Context, booking *models.Booking) error {
	docs, err := encodeBookingDocs(booking)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query, args, err := db.sb.Update("bookings").
		SetMap(map[string]interface{}{
			"resource_id":             booking.ResourceID,
			"resource_type":           booking.ResourceType,
			"date":                    booking.Date,
			"start_at":                booking.StartAt.UTC(),
			"end_at":                  booking.EndAt().UTC(),
			"duration_minutes":        booking.DurationMinutes,
			"slot_label":              nullString(booking.SlotLabel),
			"quantity":                booking.Quantity,
			"passengers":              booking.Passengers,
			"number_of_guests":        booking.NumberOfGuests,
			"add_ons":                 docs.addOns,
			"coupon_code":             nullString(booking.CouponCode),
			"pricing":                 docs.pricing,
			"final_amount":            booking.Pricing.PayableAmount(),
			"status":                  booking.Status,
			"payment_status":          booking.PaymentStatus,
			"transaction_ref":         nullString(booking.TransactionRef),
			"expires_at":              nullTime(booking.ExpiresAt),
			"cancellation":            docs.cancellation,
			"date_modifications":      docs.modifications,
			"date_modification_count": booking.DateModificationCount,
			"updated_at":              now,
			"version":                 sq.Expr("version + 1"),
		}).
		Where(sq.Eq{"id": booking.ID, "version": booking.Version, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build booking update: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("update booking", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("get rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %s version %d: %w", booking.ID, booking.Version, domain.ErrConcurrentModification)
	}

	booking.Version++
	booking.UpdatedAt = now
	return nil
}

// ListActiveBookings returns the capacity-holding bookings of a resource on a date.
// Payment expiry is not evaluated here.
func (db *DB) ListActiveBookings(ctx context.Context, resourceID, date string) ([]models.Booking, error) {
	return db.queryBookings(ctx, db.sb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{
			"resource_id": resourceID,
			"date":        date,
			"status":      []string{string(models.StatusPendingPayment), string(models.StatusConfirmed)},
			"is_deleted":  false,
		}).
		OrderBy("start_at"))
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	q := db.sb.Select(bookingColumns...).From("bookings").Where(sq.Eq{"is_deleted": false})
	if filter.ResourceID != "" {
		q = q.Where(sq.Eq{"resource_id": filter.ResourceID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.CustomerID != "" {
		q = q.Where(sq.Eq{"customer_id": filter.CustomerID})
	}
	if filter.DateFrom != "" {
		q = q.Where(sq.GtOrEq{"date": filter.DateFrom})
	}
	if filter.DateTo != "" {
		q = q.Where(sq.LtOrEq{"date": filter.DateTo})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q = q.OrderBy("start_at", "created_at").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return db.queryBookings(ctx, q)
}

// ListExpiredPendingBookings returns unpaid online bookings whose payment window closed.
func (db *DB) ListExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return db.queryBookings(ctx, db.sb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"status": models.StatusPendingPayment, "is_deleted": false}).
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.LtOrEq{"expires_at": now.UTC()}).
		OrderBy("expires_at").
		Limit(uint64(limit)))
}

// ListFinishedBookings returns confirmed bookings whose end time has passed.
func (db *DB) ListFinishedBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return db.queryBookings(ctx, db.sb.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{"status": models.StatusConfirmed, "is_deleted": false}).
		Where(sq.LtOrEq{"end_at": now.UTC()}).
		OrderBy("end_at").
		Limit(uint64(limit)))
}

func (db *DB) SoftDeleteBooking(ctx context.Context, id string, at time.Time) error {
	query, args, err := db.sb.Update("bookings").
		Set("is_deleted", true).
		Set("deleted_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build booking delete: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("delete booking", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (db *DB) queryBookings(ctx context.Context, q sq.SelectBuilder) ([]models.Booking, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build booking query: %w", err)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query bookings", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate bookings", err)
	}
	return bookings, nil
}
