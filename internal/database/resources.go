package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// UpsertResources syncs the catalog file into storage. The stored status wins
// over the file so admin status changes survive restarts.
func (db *DB) UpsertResources(ctx context.Context, resources []models.Resource) error {
	return db.InTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		for i := range resources {
			r := resources[i]
			definition, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode resource %s: %w", r.ID, err)
			}

			query, args, err := db.sb.Insert("resources").
				Columns("id", "name", "description", "type", "definition", "status", "sort_order", "created_at", "updated_at").
				Values(r.ID, r.Name, r.Description, r.Type, string(definition), r.Status, r.SortOrder, now, now).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
                    name = excluded.name,
                    description = excluded.description,
                    type = excluded.type,
                    definition = excluded.definition,
                    sort_order = excluded.sort_order,
                    updated_at = excluded.updated_at`).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build resource upsert: %w", err)
			}

			if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
				return storageErr("upsert resource "+r.ID, err)
			}
		}
		return nil
	})
}

// ListResources returns every stored resource ordered for display.
func (db *DB) ListResources(ctx context.Context) ([]models.Resource, error) {
	query, args, err := db.sb.Select("definition", "status", "created_at", "updated_at").
		From("resources").
		OrderBy("sort_order", "name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build resource query: %w", err)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list resources", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var (
			definition string
			status     models.ResourceStatus
			created    time.Time
			updated    time.Time
		)
		if err := rows.Scan(&definition, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}

		var r models.Resource
		if err := json.Unmarshal([]byte(definition), &r); err != nil {
			return nil, fmt.Errorf("failed to decode resource: %w", err)
		}
		r.Status = status
		r.CreatedAt = created
		r.UpdatedAt = updated
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate resources", err)
	}
	return resources, nil
}

func (db *DB) UpdateResourceStatus(ctx context.Context, id string, status models.ResourceStatus) error {
	query, args, err := db.sb.Update("resources").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build resource update: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("update resource status", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("resource %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
