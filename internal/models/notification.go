package models

import "time"

type Notification struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	BookingID   int64      `json:"booking_id" db:"booking_id"`
	Kind        string     `json:"kind" db:"kind"`
	Message     string     `json:"message" db:"message"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// DeliveryTask represents a queued notification delivery job.
type DeliveryTask struct {
	ID             int64      `json:"id" db:"id"`
	NotificationID int64      `json:"notification_id" db:"notification_id"`
	Status         string     `json:"status" db:"status"`
	RetryCount     int        `json:"retry_count" db:"retry_count"`
	LastError      *string    `json:"last_error" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at" db:"processed_at"`
	NextRetryAt    *time.Time `json:"next_retry_at" db:"next_retry_at"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)
