package domain

import (
	"context"
	"time"

	"companion/internal/models"
)

// StatusChange is a single conditional transition applied by the store.
type StatusChange struct {
	BookingID       int64
	ExpectedStatus  models.BookingStatus
	ExpectedVersion int64
	NewStatus       models.BookingStatus
	Notes           string
	ChangedBy       int64
	ChangedAt       time.Time
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking, changedBy int64) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetStatusHistory(ctx context.Context, bookingID int64) ([]models.StatusHistoryEntry, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	ApplyStatusChange(ctx context.Context, change StatusChange) error
	CountByStatus(ctx context.Context) (map[models.BookingStatus]int, error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	ListCompanions(ctx context.Context) ([]*models.User, error)
	SetUserOnline(ctx context.Context, id int64, online bool) error
}

type RoleRepository interface {
	HasRole(ctx context.Context, userID int64, role models.Role) (bool, error)
	GrantRole(ctx context.Context, userID int64, role models.Role, grantedBy int64) error
	RevokeRole(ctx context.Context, userID int64, role models.Role) error
	ListRoleHolders(ctx context.Context, role models.Role) ([]int64, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id int64, at time.Time) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
}

type DeliveryTaskRepository interface {
	CreateDeliveryTask(ctx context.Context, task *models.DeliveryTask) error
	GetDeliveryTask(ctx context.Context, id int64) (*models.DeliveryTask, error)
	GetPendingDeliveryTasks(ctx context.Context, limit int) ([]models.DeliveryTask, error)
	UpdateDeliveryTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedDeliveryTasks(ctx context.Context) ([]models.DeliveryTask, error)
}

// TaskQueue carries delivery tasks between the dispatcher and the worker.
type TaskQueue interface {
	Push(ctx context.Context, task models.DeliveryTask) error
	Pop(ctx context.Context, wait time.Duration) (*models.DeliveryTask, error)
	DeadLetter(ctx context.Context, task models.DeliveryTask) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Deliverer sends a notification to its recipient over an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, user *models.User, n *models.Notification) error
}

type AuthorizationGate interface {
	IsAdmin(ctx context.Context, userID int64) bool
	ResolveRole(ctx context.Context, actor models.Actor, booking *models.Booking) models.Role
}
