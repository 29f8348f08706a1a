// Package transition decides which booking status changes are legal.
package transition

import (
	"fmt"
	"strings"
	"time"

	"companion/internal/domain"
	"companion/internal/models"
)

// Request describes a requested status change.
type Request struct {
	From   models.BookingStatus
	To     models.BookingStatus
	Role   models.Role
	Reason string
	// ScheduledEnd and Now gate approved -> completed.
	ScheduledEnd time.Time
	Now          time.Time
}

type rule struct {
	roles         []models.Role
	reasonNeeded  bool
	afterSchedule bool
}

var rules = map[models.BookingStatus]map[models.BookingStatus]rule{
	models.StatusPending: {
		models.StatusApproved:  {roles: []models.Role{models.RoleCompanion, models.RoleAdmin}},
		models.StatusRejected:  {roles: []models.Role{models.RoleCompanion, models.RoleAdmin}, reasonNeeded: true},
		models.StatusCancelled: {roles: []models.Role{models.RoleRenter, models.RoleAdmin}},
	},
	models.StatusApproved: {
		models.StatusCompleted: {roles: []models.Role{models.RoleCompanion, models.RoleAdmin}, afterSchedule: true},
		models.StatusCancelled: {roles: []models.Role{models.RoleRenter, models.RoleAdmin}},
	},
	models.StatusRejected:  {},
	models.StatusCompleted: {},
	models.StatusCancelled: {},
}

// Validate returns nil when the change is allowed, otherwise one of
// domain.ErrInvalidTransition, domain.ErrUnauthorized or domain.ErrMissingReason.
func Validate(req Request) error {
	targets, ok := rules[req.From]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, req.From)
	}
	r, ok := targets[req.To]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, req.From, req.To)
	}

	if !hasRole(r.roles, req.Role) {
		return fmt.Errorf("%w: role %s cannot move booking %s -> %s", domain.ErrUnauthorized, req.Role, req.From, req.To)
	}

	if r.reasonNeeded && strings.TrimSpace(req.Reason) == "" {
		return domain.ErrMissingReason
	}

	if r.afterSchedule && req.Now.Before(req.ScheduledEnd) {
		return fmt.Errorf("%w: scheduled end %s not reached", domain.ErrInvalidTransition, req.ScheduledEnd.Format(time.RFC3339))
	}

	return nil
}

// Allowed lists statuses reachable from s, ignoring role and time.
func Allowed(s models.BookingStatus) []models.BookingStatus {
	var out []models.BookingStatus
	for _, to := range models.AllStatuses {
		if _, ok := rules[s][to]; ok {
			out = append(out, to)
		}
	}
	return out
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.BookingStatus) bool {
	return len(rules[s]) == 0
}

func hasRole(roles []models.Role, role models.Role) bool {
	if role == models.RoleNone {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
