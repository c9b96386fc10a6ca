package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// NextSequence increments and returns the named counter. Must run inside the
// caller's transaction to stay gap-free on rollback.
func (db *DB) NextSequence(ctx context.Context, name string) (int64, error) {
	query, args, err := db.sb.Insert("sequences").
		Columns("name", "value").
		Values(name, 1).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = value + 1 RETURNING value").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sequence upsert: %w", err)
	}

	var value int64
	if err := db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return 0, storageErr("next sequence "+name, err)
	}
	return value, nil
}

// GetIdempotencyKey returns the operation and entity recorded for key, or ErrNotFound.
func (db *DB) GetIdempotencyKey(ctx context.Context, key string) (string, string, error) {
	query, args, err := db.sb.Select("operation", "entity_id").
		From("idempotency_keys").
		Where(sq.Eq{"request_key": key}).
		ToSql()
	if err != nil {
		return "", "", fmt.Errorf("failed to build idempotency query: %w", err)
	}

	var operation, entityID string
	err = db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&operation, &entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("idempotency key %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", "", storageErr("get idempotency key", err)
	}
	return operation, entityID, nil
}

func (db *DB) SaveIdempotencyKey(ctx context.Context, key, operation, entityID string) error {
	query, args, err := db.sb.Insert("idempotency_keys").
		Columns("request_key", "operation", "entity_id", "created_at").
		Values(key, operation, entityID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build idempotency insert: %w", err)
	}

	if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return storageErr("save idempotency key", err)
	}
	return nil
}

func (db *DB) CreateRefundAudit(ctx context.Context, audit *models.RefundAudit) error {
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	query, args, err := db.sb.Insert("refund_audit").
		Columns("booking_id", "action", "actor", "percent", "amount", "overridden", "note", "created_at").
		Values(audit.BookingID, audit.Action, audit.Actor, audit.Percent, audit.Amount, audit.Overridden, nullString(audit.Note), audit.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build refund audit insert: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("create refund audit", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("get last insert id", err)
	}
	audit.ID = id
	return nil
}

// ListRefundAudits returns the audit trail of a booking, oldest first.
func (db *DB) ListRefundAudits(ctx context.Context, bookingID string) ([]models.RefundAudit, error) {
	query, args, err := db.sb.Select("id", "booking_id", "action", "actor", "percent", "amount", "overridden", "note", "created_at").
		From("refund_audit").
		Where(sq.Eq{"booking_id": bookingID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build refund audit query: %w", err)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list refund audits", err)
	}
	defer rows.Close()

	var audits []models.RefundAudit
	for rows.Next() {
		var (
			a    models.RefundAudit
			note sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.BookingID, &a.Action, &a.Actor, &a.Percent, &a.Amount, &a.Overridden, &note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund audit: %w", err)
		}
		a.Note = note.String
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate refund audits", err)
	}
	return audits, nil
}
