package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"companion/internal/models"
)

const notificationColumns = `id, user_id, booking_id, kind, message, created_at, delivered_at`

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	query := `INSERT INTO notifications (user_id, booking_id, kind, message, created_at)
              VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, n.UserID, n.BookingID, n.Kind, n.Message, now)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	if err := db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %d: %w", id, ErrNotificationNotFound)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (db *DB) MarkNotificationDelivered(ctx context.Context, id int64, at time.Time) error {
	if _, err := db.ExecContext(ctx, `UPDATE notifications SET delivered_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}

// ListNotifications возвращает последние уведомления пользователя, новые первыми.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > models.MaxListLimit {
		limit = models.DefaultListLimit
	}
	items := []*models.Notification{}
	query := `SELECT ` + notificationColumns + ` FROM notifications
              WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	if err := db.SelectContext(ctx, &items, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}
