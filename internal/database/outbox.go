package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prichal/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var outboxColumns = []string{
	"id", "event_type", "entity_id", "payload", "status", "retry_count", "last_error", "created_at", "processed_at", "next_retry_at",
}

func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	query, args, err := db.sb.Insert("notification_outbox").
		Columns("event_type", "entity_id", "payload", "status", "retry_count", "last_error", "created_at", "next_retry_at").
		Values(task.EventType, task.EntityID, task.Payload, task.Status, task.RetryCount, task.LastError, now, nullTime(task.NextRetryAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notification task insert: %w", err)
	}

	result, err := db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("create notification task", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("get last insert id", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

// GetPendingNotificationTasks returns tasks due for delivery at now.
func (db *DB) GetPendingNotificationTasks(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error) {
	return db.queryTasks(ctx, db.sb.Select(outboxColumns...).From("notification_outbox").
		Where(sq.Eq{"status": []string{models.TaskStatusPending, models.TaskStatusRetry}}).
		Where(sq.Or{sq.Eq{"next_retry_at": nil}, sq.LtOrEq{"next_retry_at": now.UTC()}}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)))
}

func (db *DB) GetFailedNotificationTasks(ctx context.Context) ([]models.NotificationTask, error) {
	return db.queryTasks(ctx, db.sb.Select(outboxColumns...).From("notification_outbox").
		Where(sq.Eq{"status": models.TaskStatusFailed}).
		OrderBy("created_at DESC"))
}

func (db *DB) UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	now := time.Now().UTC()
	q := db.sb.Update("notification_outbox").
		Set("status", status).
		Set("last_error", nullString(errMsg)).
		Set("next_retry_at", nullTime(nextRetryAt)).
		Where(sq.Eq{"id": id})

	switch status {
	case models.TaskStatusRetry:
		q = q.Set("retry_count", sq.Expr("retry_count + 1"))
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		q = q.Set("processed_at", now)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build notification task update: %w", err)
	}
	if _, err := db.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return storageErr("update notification task status", err)
	}
	return nil
}

func (db *DB) queryTasks(ctx context.Context, q sq.SelectBuilder) ([]models.NotificationTask, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build notification task query: %w", err)
	}

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get notification tasks", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var (
			t                        models.NotificationTask
			lastError                sql.NullString
			processedAt, nextRetryAt sql.NullTime
		)
		err := rows.Scan(
			&t.ID, &t.EventType, &t.EntityID, &t.Payload, &t.Status, &t.RetryCount, &lastError, &t.CreatedAt, &processedAt, &nextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		if lastError.Valid {
			msg := lastError.String
			t.LastError = &msg
		}
		t.ProcessedAt = timePtr(processedAt)
		t.NextRetryAt = timePtr(nextRetryAt)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate notification tasks", err)
	}
	return tasks, nil
}
