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
)

// GetLatestSettings returns the newest settings snapshot.
func (db *DB) GetLatestSettings(ctx context.Context) (*models.Settings, error) {
	query, args, err := db.sb.Select("version", "snapshot", "updated_by", "created_at").
		From("settings_versions").
		OrderBy("version DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build settings query: %w", err)
	}

	var (
		version   int64
		snapshot  string
		updatedBy sql.NullString
		createdAt time.Time
	)
	err = db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&version, &snapshot, &updatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settings: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get settings", err)
	}

	var s models.Settings
	if err := json.Unmarshal([]byte(snapshot), &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings version %d: %w", version, err)
	}
	s.Version = version
	s.UpdatedBy = updatedBy.String
	s.UpdatedAt = createdAt
	return &s, nil
}

// SaveSettings appends settings as the next version and stamps settings.Version.
func (db *DB) SaveSettings(ctx context.Context, settings *models.Settings) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		var current sql.NullInt64
		query, args, err := db.sb.Select("MAX(version)").From("settings_versions").ToSql()
		if err != nil {
			return fmt.Errorf("failed to build settings version query: %w", err)
		}
		if err := db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&current); err != nil {
			return storageErr("get settings version", err)
		}

		next := current.Int64 + 1
		now := time.Now().UTC()
		settings.Version = next
		settings.UpdatedAt = now

		snapshot, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}

		query, args, err = db.sb.Insert("settings_versions").
			Columns("version", "snapshot", "updated_by", "created_at").
			Values(next, string(snapshot), nullString(settings.UpdatedBy), now).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build settings insert: %w", err)
		}
		if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
			return storageErr("save settings", err)
		}
		return nil
	})
}
