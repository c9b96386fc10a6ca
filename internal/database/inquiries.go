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

var inquiryColumns = []string{
	"id", "inquiry_number", "customer_id", "customer_name", "customer_phone", "customer_email",
	"resource_id", "event_type", "date", "slot_label", "location_type", "number_of_guests",
	"add_ons", "notes", "status", "quoted_amount", "quoted_details", "quoted_at", "responded_at",
	"rejection_reason", "converted_booking_id", "converted_at", "is_deleted", "deleted_at",
	"created_at", "updated_at", "version",
}

func scanInquiry(row rowScanner) (*models.Inquiry, error) {
	var (
		inq                                           models.Inquiry
		customerID, email, locType, notes, details    sql.NullString
		rejection, convertedID                        sql.NullString
		quotedAmount                                  sql.NullInt64
		quotedAt, respondedAt, convertedAt, deletedAt sql.NullTime
		addOns                                        string
	)

	err := row.Scan(
		&inq.ID, &inq.InquiryNumber, &customerID, &inq.CustomerName, &inq.CustomerPhone, &email,
		&inq.ResourceID, &inq.EventType, &inq.Date, &inq.SlotLabel, &locType, &inq.NumberOfGuests,
		&addOns, &notes, &inq.Status, &quotedAmount, &details, &quotedAt, &respondedAt,
		&rejection, &convertedID, &convertedAt, &inq.IsDeleted, &deletedAt,
		&inq.CreatedAt, &inq.UpdatedAt, &inq.Version,
	)
	if err != nil {
		return nil, err
	}

	inq.CustomerID = customerID.String
	inq.CustomerEmail = email.String
	inq.LocationType = locType.String
	inq.Notes = notes.String
	inq.QuotedDetails = details.String
	inq.RejectionReason = rejection.String
	inq.ConvertedBookingID = convertedID.String
	if quotedAmount.Valid {
		v := quotedAmount.Int64
		inq.QuotedAmount = &v
	}
	inq.QuotedAt = timePtr(quotedAt)
	inq.RespondedAt = timePtr(respondedAt)
	inq.ConvertedAt = timePtr(convertedAt)
	inq.DeletedAt = timePtr(deletedAt)

	if err := json.Unmarshal([]byte(addOns), &inq.AddOns); err != nil {
		return nil, fmt.Errorf("failed to decode add-ons of inquiry %s: %w", inq.ID, err)
	}
	if len(inq.AddOns) == 0 {
		inq.AddOns = nil
	}
	return &inq, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func encodeAddOns(addOns []models.SelectedAddOn) (string, error) {
	if addOns == nil {
		addOns = []models.SelectedAddOn{}
	}
	raw, err := json.Marshal(addOns)
	if err != nil {
		return "", fmt.Errorf("failed to encode add-ons: %w", err)
	}
	return string(raw), nil
}

func (db *DB) CreateInquiry(ctx context.Context, inquiry *models.Inquiry) error {
	addOns, err := encodeAddOns(inquiry.AddOns)
	if err != nil {
		return err
	}

	if inquiry.CreatedAt.IsZero() {
		inquiry.CreatedAt = time.Now().UTC()
	}
	inquiry.UpdatedAt = inquiry.CreatedAt
	inquiry.Version = 1

	query, args, err := db.sb.Insert("inquiries").
		Columns(inquiryColumns...).
		Values(
			inquiry.ID, inquiry.InquiryNumber, nullString(inquiry.CustomerID), inquiry.CustomerName, inquiry.CustomerPhone, nullString(inquiry.CustomerEmail),
			inquiry.ResourceID, inquiry.EventType, inquiry.Date, inquiry.SlotLabel, nullString(inquiry.LocationType), inquiry.NumberOfGuests,
			addOns, nullString(inquiry.Notes), inquiry.Status, nullInt64(inquiry.QuotedAmount), nullString(inquiry.QuotedDetails), nullTime(inquiry.QuotedAt), nullTime(inquiry.RespondedAt),
			nullString(inquiry.RejectionReason), nullString(inquiry.ConvertedBookingID), nullTime(inquiry.ConvertedAt), inquiry.IsDeleted, nullTime(inquiry.DeletedAt),
			inquiry.CreatedAt.UTC(), inquiry.UpdatedAt.UTC(), inquiry.Version,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inquiry insert: %w", err)
	}

	if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return storageErr("create inquiry", err)
	}
	return nil
}

func (db *DB) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	query, args, err := db.sb.Select(inquiryColumns...).From("inquiries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build inquiry select: %w", err)
	}

	inquiry, err := scanInquiry(db.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inquiry %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get inquiry", err)
	}
	return inquiry, nil
}

// UpdateInquiryWithVersion persists the negotiable and lifecycle fields of an inquiry.
func (db *DB) UpdateInquiryWithVersion(ctx context.Context, inquiry *models.Inquiry) error {
	addOns, err := encodeAddOns(inquiry.AddOns)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query, args, err := db.sb.Update("inquiries").
		SetMap(map[string]interface{}{
			"date":                 inquiry.Date,
			"slot_label":           inquiry.SlotLabel,
			"number_of_guests":     inquiry.NumberOfGuests,
			"add_ons":              addOns,
			"status":               inquiry.Status,
			"quoted_amount":        nullInt64(inquiry.QuotedAmount),
			"quoted_details":       nullString(inquiry.QuotedDetails),
			"quoted_at":            nullTime(inquiry.QuotedAt),
			"responded_at":         nullTime(inquiry.RespondedAt),
			"rejection_reason":     nullString(inquiry.RejectionReason),
			"converted_booking_id": nullString(inquiry.ConvertedBookingID),
			"converted_at":         nullTime(inquiry.ConvertedAt),
			"updated_at":           now,
			"version":              sq.Expr("version + 1"),
		}).
		Where(sq.Eq{"id": inquiry.ID, "version": inquiry.Version, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inquiry update: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("update inquiry", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("get rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("inquiry %s version %d: %w", inquiry.ID, inquiry.Version, domain.ErrConcurrentModification)
	}

	inquiry.Version++
	inquiry.UpdatedAt = now
	return nil
}

// ListStaleInquiries returns open inquiries created before createdBefore or
// whose event date is earlier than dateBefore.
func (db *DB) ListStaleInquiries(ctx context.Context, createdBefore time.Time, dateBefore string, limit int) ([]models.Inquiry, error) {
	query, args, err := db.sb.Select(inquiryColumns...).From("inquiries").
		Where(sq.Eq{
			"status":     []string{string(models.InquiryPending), string(models.InquiryQuoted)},
			"is_deleted": false,
		}).
		Where(sq.Or{
			sq.LtOrEq{"created_at": createdBefore.UTC()},
			sq.Lt{"date": dateBefore},
		}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build inquiry query: %w", err)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query inquiries", err)
	}
	defer rows.Close()

	var inquiries []models.Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inquiry: %w", err)
		}
		inquiries = append(inquiries, *inq)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate inquiries", err)
	}
	return inquiries, nil
}

func (db *DB) SoftDeleteInquiry(ctx context.Context, id string, at time.Time) error {
	query, args, err := db.sb.Update("inquiries").
		Set("is_deleted", true).
		Set("deleted_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inquiry delete: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("delete inquiry", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("inquiry %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
