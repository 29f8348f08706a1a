package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"companion/internal/domain"
	"companion/internal/models"
	"companion/internal/recommend"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type UserService struct {
	users         domain.UserRepository
	notifications domain.NotificationRepository
	logger        *zerolog.Logger
}

func NewUserService(users domain.UserRepository, notifications domain.NotificationRepository, logger *zerolog.Logger) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{users: users, notifications: notifications, logger: logger}
}

type ProfileInput struct {
	DisplayName    string
	Email          string
	City           string
	Interests      []string
	HourlyRate     decimal.Decimal
	IsCompanion    bool
	IsOnline       bool
	TelegramChatID int64
}

func (s *UserService) Profile(ctx context.Context, actor models.Actor) (*models.User, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// SaveProfile creates or replaces the actor's own profile.
func (s *UserService) SaveProfile(ctx context.Context, actor models.Actor, in ProfileInput) (*models.User, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", domain.ErrValidation)
	}
	if in.HourlyRate.IsNegative() {
		return nil, fmt.Errorf("%w: hourly rate cannot be negative", domain.ErrValidation)
	}
	if in.IsCompanion && !in.HourlyRate.IsPositive() {
		return nil, fmt.Errorf("%w: companions need a positive hourly rate", domain.ErrValidation)
	}

	user := &models.User{
		ID:             actor.UserID,
		DisplayName:    name,
		Email:          strings.TrimSpace(in.Email),
		City:           strings.TrimSpace(in.City),
		Interests:      in.Interests,
		HourlyRate:     in.HourlyRate,
		IsCompanion:    in.IsCompanion,
		IsOnline:       in.IsOnline,
		TelegramChatID: in.TelegramChatID,
	}
	if err := s.users.CreateOrUpdateUser(ctx, user); err != nil {
		return nil, storeErr(err)
	}

	saved, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	s.logger.Info().Int64("user_id", saved.ID).Bool("is_companion", saved.IsCompanion).Msg("Profile saved")
	return saved, nil
}

// SetOnline toggles the actor's presence flag, which feeds recommendations.
func (s *UserService) SetOnline(ctx context.Context, actor models.Actor, online bool) (*models.User, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := s.users.SetUserOnline(ctx, actor.UserID, online); err != nil {
		return nil, storeErr(err)
	}
	user.IsOnline = online
	s.logger.Debug().Int64("user_id", user.ID).Bool("online", online).Msg("Presence changed")
	return user, nil
}

// RecommendCompanions ranks companions for the actor. A renter without a
// profile still gets the list, ordered by availability only.
func (s *UserService) RecommendCompanions(ctx context.Context, actor models.Actor, limit int) ([]recommend.Scored, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}

	renter, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, storeErr(err)
		}
		renter = &models.User{ID: actor.UserID}
	}

	companions, err := s.users.ListCompanions(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return recommend.Rank(renter, companions, limit), nil
}

func (s *UserService) Notifications(ctx context.Context, actor models.Actor, limit int) ([]*models.Notification, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	list, err := s.notifications.ListNotifications(ctx, actor.UserID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}
