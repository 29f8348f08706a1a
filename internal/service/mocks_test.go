package service

import (
	"context"
	"time"

	"companion/internal/domain"
	"companion/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) CreateBooking(ctx context.Context, b *models.Booking, changedBy int64) error {
	return m.Called(ctx, b, changedBy).Error(0)
}

func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) GetStatusHistory(ctx context.Context, id int64) ([]models.StatusHistoryEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatusHistoryEntry), args.Error(1)
}

func (m *mockBookingRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ApplyStatusChange(ctx context.Context, c domain.StatusChange) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockBookingRepo) CountByStatus(ctx context.Context) (map[models.BookingStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.BookingStatus]int), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) CreateOrUpdateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) ListCompanions(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *mockUserRepo) SetUserOnline(ctx context.Context, id int64, online bool) error {
	return m.Called(ctx, id, online).Error(0)
}

type mockRoleRepo struct {
	mock.Mock
}

func (m *mockRoleRepo) HasRole(ctx context.Context, userID int64, role models.Role) (bool, error) {
	args := m.Called(ctx, userID, role)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoleRepo) GrantRole(ctx context.Context, userID int64, role models.Role, grantedBy int64) error {
	return m.Called(ctx, userID, role, grantedBy).Error(0)
}

func (m *mockRoleRepo) RevokeRole(ctx context.Context, userID int64, role models.Role) error {
	return m.Called(ctx, userID, role).Error(0)
}

func (m *mockRoleRepo) ListRoleHolders(ctx context.Context, role models.Role) ([]int64, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationRepo) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *mockNotificationRepo) MarkNotificationDelivered(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockNotificationRepo) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockDeliveryTaskRepo struct {
	mock.Mock
}

func (m *mockDeliveryTaskRepo) CreateDeliveryTask(ctx context.Context, task *models.DeliveryTask) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockDeliveryTaskRepo) GetDeliveryTask(ctx context.Context, id int64) (*models.DeliveryTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeliveryTask), args.Error(1)
}

func (m *mockDeliveryTaskRepo) GetPendingDeliveryTasks(ctx context.Context, limit int) ([]models.DeliveryTask, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DeliveryTask), args.Error(1)
}

func (m *mockDeliveryTaskRepo) UpdateDeliveryTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	return m.Called(ctx, id, status, errMsg, nextRetryAt).Error(0)
}

func (m *mockDeliveryTaskRepo) GetFailedDeliveryTasks(ctx context.Context) ([]models.DeliveryTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DeliveryTask), args.Error(1)
}
