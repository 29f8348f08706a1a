package service

import (
	"context"
	"fmt"

	"companion/internal/domain"
	"companion/internal/models"

	"github.com/rs/zerolog"
)

// AuthGate is the single source of truth for role decisions. Every call
// goes to the role store; nothing is cached between calls.
type AuthGate struct {
	roles  domain.RoleRepository
	logger *zerolog.Logger
}

func NewAuthGate(roles domain.RoleRepository, logger *zerolog.Logger) *AuthGate {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AuthGate{roles: roles, logger: logger}
}

// IsAdmin fails closed: a lookup error is logged and treated as "not admin".
func (g *AuthGate) IsAdmin(ctx context.Context, userID int64) bool {
	if userID <= 0 {
		return false
	}
	ok, err := g.roles.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		g.logger.Error().Err(err).Int64("user_id", userID).Msg("Admin role lookup failed")
		return false
	}
	return ok
}

// ResolveRole maps the actor to its relation with the booking.
// Admin wins over Companion, Companion over Renter.
func (g *AuthGate) ResolveRole(ctx context.Context, actor models.Actor, booking *models.Booking) models.Role {
	if actor.IsZero() {
		return models.RoleNone
	}
	if g.IsAdmin(ctx, actor.UserID) {
		return models.RoleAdmin
	}
	if booking == nil {
		return models.RoleNone
	}
	switch actor.UserID {
	case booking.CompanionID:
		return models.RoleCompanion
	case booking.RenterID:
		return models.RoleRenter
	}
	return models.RoleNone
}

func (g *AuthGate) GrantAdmin(ctx context.Context, actor models.Actor, userID int64) error {
	if !g.IsAdmin(ctx, actor.UserID) {
		return domain.ErrUnauthorized
	}
	if userID <= 0 {
		return fmt.Errorf("%w: invalid user id %d", domain.ErrValidation, userID)
	}
	if err := g.roles.GrantRole(ctx, userID, models.RoleAdmin, actor.UserID); err != nil {
		return fmt.Errorf("%w: grant admin: %w", domain.ErrStoreUnavailable, err)
	}
	g.logger.Info().Int64("user_id", userID).Int64("actor_id", actor.UserID).Msg("Admin role granted")
	return nil
}

// RevokeAdmin removes the role. An admin cannot revoke themselves so the
// last admin cannot lock everyone out by accident.
func (g *AuthGate) RevokeAdmin(ctx context.Context, actor models.Actor, userID int64) error {
	if !g.IsAdmin(ctx, actor.UserID) {
		return domain.ErrUnauthorized
	}
	if userID <= 0 || userID == actor.UserID {
		return fmt.Errorf("%w: cannot revoke admin role of user %d", domain.ErrValidation, userID)
	}
	if err := g.roles.RevokeRole(ctx, userID, models.RoleAdmin); err != nil {
		return fmt.Errorf("%w: revoke admin: %w", domain.ErrStoreUnavailable, err)
	}
	g.logger.Info().Int64("user_id", userID).Int64("actor_id", actor.UserID).Msg("Admin role revoked")
	return nil
}

// ListAdmins returns the ids of every admin. Admin only.
func (g *AuthGate) ListAdmins(ctx context.Context, actor models.Actor) ([]int64, error) {
	if !g.IsAdmin(ctx, actor.UserID) {
		return nil, domain.ErrUnauthorized
	}
	ids, err := g.roles.ListRoleHolders(ctx, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("%w: list admins: %w", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

// BootstrapAdmins grants the admin role to configured users at startup.
func (g *AuthGate) BootstrapAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := g.roles.GrantRole(ctx, id, models.RoleAdmin, 0); err != nil {
			return fmt.Errorf("bootstrap admin %d: %w", id, err)
		}
	}
	if len(ids) > 0 {
		g.logger.Info().Int("count", len(ids)).Msg("Admins bootstrapped")
	}
	return nil
}
