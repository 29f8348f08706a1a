package database

import (
	"context"
	"fmt"
	"time"

	"companion/internal/models"
)

const deliveryTaskColumns = `id, notification_id, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateDeliveryTask(ctx context.Context, task *models.DeliveryTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	query := `INSERT INTO delivery_tasks (notification_id, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.NotificationID,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) GetDeliveryTask(ctx context.Context, id int64) (*models.DeliveryTask, error) {
	var task models.DeliveryTask
	query := `SELECT ` + deliveryTaskColumns + ` FROM delivery_tasks WHERE id = ?`
	if err := db.GetContext(ctx, &task, query, id); err != nil {
		return nil, fmt.Errorf("failed to get delivery task: %w", err)
	}
	return &task, nil
}

func (db *DB) GetPendingDeliveryTasks(ctx context.Context, limit int) ([]models.DeliveryTask, error) {
	query := `SELECT ` + deliveryTaskColumns + `
              FROM delivery_tasks
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	tasks := []models.DeliveryTask{}
	if err := db.SelectContext(ctx, &tasks, query, time.Now().UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to get pending delivery tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) UpdateDeliveryTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE delivery_tasks SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE delivery_tasks SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE delivery_tasks SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update delivery task status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedDeliveryTasks(ctx context.Context) ([]models.DeliveryTask, error) {
	query := `SELECT ` + deliveryTaskColumns + `
              FROM delivery_tasks WHERE status = 'failed' ORDER BY created_at DESC, id DESC`
	tasks := []models.DeliveryTask{}
	if err := db.SelectContext(ctx, &tasks, query); err != nil {
		return nil, fmt.Errorf("failed to get failed delivery tasks: %w", err)
	}
	return tasks, nil
}
