package transition

import (
	"testing"
	"time"

	"companion/internal/domain"
	"companion/internal/models"

	"github.com/stretchr/testify/assert"
)

var allRoles = []models.Role{models.RoleNone, models.RoleRenter, models.RoleCompanion, models.RoleAdmin}

func TestValidate_UnlistedPairsAreInvalid(t *testing.T) {
	allowed := map[[2]models.BookingStatus]bool{
		{models.StatusPending, models.StatusApproved}:   true,
		{models.StatusPending, models.StatusRejected}:   true,
		{models.StatusPending, models.StatusCancelled}:  true,
		{models.StatusApproved, models.StatusCompleted}: true,
		{models.StatusApproved, models.StatusCancelled}: true,
	}

	for _, from := range models.AllStatuses {
		for _, to := range models.AllStatuses {
			if allowed[[2]models.BookingStatus{from, to}] {
				continue
			}
			for _, role := range allRoles {
				err := Validate(Request{From: from, To: to, Role: role, Reason: "x", Now: time.Now()})
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s as %s", from, to, role)
			}
		}
	}
}

func TestValidate_SameStatusIsInvalid(t *testing.T) {
	for _, s := range models.AllStatuses {
		err := Validate(Request{From: s, To: s, Role: models.RoleAdmin, Reason: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	err := Validate(Request{From: "confirmed", To: models.StatusApproved, Role: models.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestValidate_Roles(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		from    models.BookingStatus
		to      models.BookingStatus
		role    models.Role
		wantErr error
	}{
		{"approve as companion", models.StatusPending, models.StatusApproved, models.RoleCompanion, nil},
		{"approve as admin", models.StatusPending, models.StatusApproved, models.RoleAdmin, nil},
		{"approve as renter", models.StatusPending, models.StatusApproved, models.RoleRenter, domain.ErrUnauthorized},
		{"approve as outsider", models.StatusPending, models.StatusApproved, models.RoleNone, domain.ErrUnauthorized},
		{"reject as renter", models.StatusPending, models.StatusRejected, models.RoleRenter, domain.ErrUnauthorized},
		{"cancel pending as renter", models.StatusPending, models.StatusCancelled, models.RoleRenter, nil},
		{"cancel approved as admin", models.StatusApproved, models.StatusCancelled, models.RoleAdmin, nil},
		{"cancel as companion", models.StatusPending, models.StatusCancelled, models.RoleCompanion, domain.ErrUnauthorized},
		{"complete as companion", models.StatusApproved, models.StatusCompleted, models.RoleCompanion, nil},
		{"complete as renter", models.StatusApproved, models.StatusCompleted, models.RoleRenter, domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Request{From: tt.from, To: tt.to, Role: tt.role, Reason: "because", ScheduledEnd: past, Now: now})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_RejectNeedsReason(t *testing.T) {
	for _, reason := range []string{"", "   ", "\t\n"} {
		err := Validate(Request{From: models.StatusPending, To: models.StatusRejected, Role: models.RoleCompanion, Reason: reason})
		assert.ErrorIs(t, err, domain.ErrMissingReason)
	}

	err := Validate(Request{From: models.StatusPending, To: models.StatusRejected, Role: models.RoleCompanion, Reason: "busy"})
	assert.NoError(t, err)
}

func TestValidate_CancelReasonOptional(t *testing.T) {
	err := Validate(Request{From: models.StatusApproved, To: models.StatusCancelled, Role: models.RoleRenter})
	assert.NoError(t, err)
}

func TestValidate_CompletionWaitsForScheduledEnd(t *testing.T) {
	end := time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)

	err := Validate(Request{From: models.StatusApproved, To: models.StatusCompleted, Role: models.RoleAdmin, ScheduledEnd: end, Now: end.Add(-time.Minute)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = Validate(Request{From: models.StatusApproved, To: models.StatusCompleted, Role: models.RoleAdmin, ScheduledEnd: end, Now: end})
	assert.NoError(t, err)
}

func TestValidate_Deterministic(t *testing.T) {
	req := Request{From: models.StatusPending, To: models.StatusApproved, Role: models.RoleRenter}
	first := Validate(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Error(), Validate(req).Error())
	}
}

func TestAllowedAndTerminal(t *testing.T) {
	assert.Equal(t, []models.BookingStatus{models.StatusApproved, models.StatusRejected, models.StatusCancelled}, Allowed(models.StatusPending))
	assert.Equal(t, []models.BookingStatus{models.StatusCompleted, models.StatusCancelled}, Allowed(models.StatusApproved))
	assert.Empty(t, Allowed(models.StatusCompleted))

	assert.False(t, IsTerminal(models.StatusPending))
	assert.False(t, IsTerminal(models.StatusApproved))
	assert.True(t, IsTerminal(models.StatusRejected))
	assert.True(t, IsTerminal(models.StatusCompleted))
	assert.True(t, IsTerminal(models.StatusCancelled))
}
