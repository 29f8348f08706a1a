package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion/internal/domain"
	"companion/internal/events"
	"companion/internal/metrics"
	"companion/internal/models"
	"companion/internal/transition"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MaxDurationHours bounds a single booking.
const MaxDurationHours = 24

type BookingOptions struct {
	MaxBookingDays  int
	CompletionGrace time.Duration
	Location        *time.Location
}

// BookingService is the only path through which a booking changes status.
type BookingService struct {
	bookings        domain.BookingRepository
	users           domain.UserRepository
	gate            domain.AuthorizationGate
	eventBus        domain.EventPublisher
	maxBookingDays  int
	completionGrace time.Duration
	loc             *time.Location
	now             func() time.Time
	logger          *zerolog.Logger
}

type CreateBookingInput struct {
	CompanionID   int64
	Date          time.Time
	StartTime     string
	DurationHours int
	Notes         string
}

func NewBookingService(
	bookings domain.BookingRepository,
	users domain.UserRepository,
	gate domain.AuthorizationGate,
	eventBus domain.EventPublisher,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxBookingDays <= 0 {
		opts.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		bookings:        bookings,
		users:           users,
		gate:            gate,
		eventBus:        eventBus,
		maxBookingDays:  opts.MaxBookingDays,
		completionGrace: opts.CompletionGrace,
		loc:             opts.Location,
		now:             time.Now,
		logger:          logger,
	}
}

// FetchBookings lists bookings visible to the actor. Admins see everything,
// everyone else only bookings they take part in.
func (s *BookingService) FetchBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	if filter.Status != "" && filter.Status != models.StatusAll && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: date range is inverted", domain.ErrValidation)
	}
	if !s.gate.IsAdmin(ctx, actor.UserID) {
		filter.PartyID = actor.UserID
	}
	filter.Normalize()

	list, err := s.bookings.ListBookings(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

func (s *BookingService) GetByID(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.IsParty(actor.UserID) && !s.gate.IsAdmin(ctx, actor.UserID) {
		return nil, domain.ErrUnauthorized
	}
	return booking, nil
}

// Create books a companion on behalf of the actor, who becomes the renter.
// Actions lists the statuses the actor may move the booking to right now.
// Reject is listed even though it still needs a reason.
func (s *BookingService) Actions(ctx context.Context, actor models.Actor, b *models.Booking) []models.BookingStatus {
	if b == nil || actor.IsZero() || transition.IsTerminal(b.Status) {
		return []models.BookingStatus{}
	}
	role := s.gate.ResolveRole(ctx, actor, b)
	now := s.now()
	out := []models.BookingStatus{}
	for _, to := range transition.Allowed(b.Status) {
		err := transition.Validate(transition.Request{
			From:         b.Status,
			To:           to,
			Role:         role,
			ScheduledEnd: s.ScheduledEnd(b),
			Now:          now,
		})
		if err == nil || errors.Is(err, domain.ErrMissingReason) {
			out = append(out, to)
		}
	}
	return out
}

func (s *BookingService) Create(ctx context.Context, actor models.Actor, in CreateBookingInput) (*models.Booking, error) {
	if actor.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if in.CompanionID == actor.UserID {
		return nil, fmt.Errorf("%w: cannot book yourself", domain.ErrValidation)
	}

	renter, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: renter profile not found", domain.ErrValidation)
		}
		return nil, storeErr(err)
	}
	companion, err := s.users.GetUserByID(ctx, in.CompanionID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: companion %d not found", domain.ErrValidation, in.CompanionID)
		}
		return nil, storeErr(err)
	}
	if !companion.IsCompanion {
		return nil, fmt.Errorf("%w: user %d is not a companion", domain.ErrValidation, in.CompanionID)
	}

	now := s.now().UTC()
	booking := &models.Booking{
		RenterID:      renter.ID,
		RenterName:    renter.DisplayName,
		CompanionID:   companion.ID,
		CompanionName: companion.DisplayName,
		Date:          time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:     in.StartTime,
		DurationHours: in.DurationHours,
		TotalPrice:    companion.HourlyRate.Mul(decimal.NewFromInt(int64(in.DurationHours))),
		Status:        models.StatusPending,
		Notes:         strings.TrimSpace(in.Notes),
		CreatedAt:     now,
	}
	if err := s.bookings.CreateBooking(ctx, booking, actor.UserID); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("actor_id", actor.UserID).
		Int64("companion_id", booking.CompanionID).
		Str("total_price", booking.TotalPrice.StringFixed(2)).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, booking, "", models.RoleRenter, actor.UserID, now)
	return booking, nil
}

func (s *BookingService) Approve(ctx context.Context, actor models.Actor, id int64, notes string) (*models.Booking, error) {
	return s.changeStatus(ctx, actor, id, models.StatusApproved, notes)
}

// Reject requires a non-blank reason; it is checked before the booking is loaded.
func (s *BookingService) Reject(ctx context.Context, actor models.Actor, id int64, reason string) (*models.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.ErrMissingReason
	}
	return s.changeStatus(ctx, actor, id, models.StatusRejected, reason)
}

func (s *BookingService) Cancel(ctx context.Context, actor models.Actor, id int64, reason string) (*models.Booking, error) {
	return s.changeStatus(ctx, actor, id, models.StatusCancelled, reason)
}

func (s *BookingService) Complete(ctx context.Context, actor models.Actor, id int64, notes string) (*models.Booking, error) {
	return s.changeStatus(ctx, actor, id, models.StatusCompleted, notes)
}

// Stats returns booking counts per status for the admin dashboard.
func (s *BookingService) Stats(ctx context.Context, actor models.Actor) (map[models.BookingStatus]int, error) {
	if !s.gate.IsAdmin(ctx, actor.UserID) {
		return nil, domain.ErrUnauthorized
	}
	counts, err := s.bookings.CountByStatus(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return counts, nil
}

// ExportBookings loads every booking dated within [from, to] together with
// its history. Admin only.
func (s *BookingService) ExportBookings(ctx context.Context, actor models.Actor, from, to time.Time) ([]*models.Booking, error) {
	if !s.gate.IsAdmin(ctx, actor.UserID) {
		return nil, domain.ErrUnauthorized
	}

	filter := models.BookingFilter{
		Status: models.StatusAll,
		From:   from,
		To:     to,
		Limit:  models.MaxListLimit,
	}
	var out []*models.Booking
	for {
		page, err := s.bookings.ListBookings(ctx, filter)
		if err != nil {
			return nil, storeErr(err)
		}
		for _, b := range page {
			history, err := s.bookings.GetStatusHistory(ctx, b.ID)
			if err != nil {
				return nil, storeErr(err)
			}
			b.StatusHistory = history
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}
	return out, nil
}

// ScheduledEnd is the moment the booked slot ends, interpreted in the
// service location, plus the completion grace period.
func (s *BookingService) ScheduledEnd(b *models.Booking) time.Time {
	start := b.StartsAt()
	local := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute(), 0, 0, s.loc)
	return local.Add(time.Duration(b.DurationHours) * time.Hour).Add(s.completionGrace)
}

func (s *BookingService) changeStatus(ctx context.Context, actor models.Actor, id int64, to models.BookingStatus, notes string) (*models.Booking, error) {
	if actor.IsZero() {
		metrics.IncTransitionError(errorKind(domain.ErrUnauthorized))
		return nil, domain.ErrUnauthorized
	}

	booking, err := s.load(ctx, id)
	if err != nil {
		metrics.IncTransitionError(errorKind(err))
		return nil, err
	}

	// Роль каждый раз заново из хранилища
	role := s.gate.ResolveRole(ctx, actor, booking)
	now := s.now()
	from := booking.Status
	notes = strings.TrimSpace(notes)

	err = transition.Validate(transition.Request{
		From:         from,
		To:           to,
		Role:         role,
		Reason:       notes,
		ScheduledEnd: s.ScheduledEnd(booking),
		Now:          now,
	})
	if err != nil {
		metrics.IncTransitionError(errorKind(err))
		s.logger.Warn().Err(err).
			Int64("booking_id", id).
			Int64("actor_id", actor.UserID).
			Str("role", role.String()).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Transition rejected")
		return nil, err
	}

	changedAt := now.UTC()
	if n := len(booking.StatusHistory); n > 0 {
		last := booking.StatusHistory[n-1].Timestamp
		if !changedAt.After(last) {
			changedAt = last.Add(time.Microsecond)
		}
	}

	err = s.bookings.ApplyStatusChange(ctx, domain.StatusChange{
		BookingID:       booking.ID,
		ExpectedStatus:  from,
		ExpectedVersion: booking.Version,
		NewStatus:       to,
		Notes:           notes,
		ChangedBy:       actor.UserID,
		ChangedAt:       changedAt,
	})
	if err != nil {
		err = storeErr(err)
		metrics.IncTransitionError(errorKind(err))
		s.logger.Error().Err(err).Int64("booking_id", id).Str("to", to.String()).Msg("Apply status change failed")
		return nil, err
	}

	booking.Status = to
	booking.Version++
	booking.UpdatedAt = changedAt
	booking.StatusHistory = append(booking.StatusHistory, models.StatusHistoryEntry{
		BookingID: booking.ID,
		Status:    to,
		Timestamp: changedAt,
		Notes:     notes,
		ChangedBy: actor.UserID,
	})

	metrics.IncTransition(from.String(), to.String())
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("actor_id", actor.UserID).
		Str("role", role.String()).
		Str("from", from.String()).
		Str("status", to.String()).
		Msg("Booking status changed")

	if eventType, ok := events.TypeForStatus(to); ok {
		s.publishEvent(eventType, booking, from, role, actor.UserID, changedAt)
	}
	return booking, nil
}

func (s *BookingService) load(ctx context.Context, id int64) (*models.Booking, error) {
	if id <= 0 {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	booking, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return booking, nil
}

func (s *BookingService) validateInput(in CreateBookingInput) error {
	if in.CompanionID <= 0 {
		return fmt.Errorf("%w: companion is required", domain.ErrValidation)
	}
	if in.DurationHours <= 0 || in.DurationHours > MaxDurationHours {
		return fmt.Errorf("%w: duration must be between 1 and %d hours", domain.ErrValidation, MaxDurationHours)
	}
	startAt, err := time.Parse(models.TimeLayout, in.StartTime)
	if err != nil {
		return fmt.Errorf("%w: start time must be HH:MM", domain.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrValidation)
	}

	// Сравниваем календарные дни в часовом поясе сервиса
	local := s.now().In(s.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(today) {
		return fmt.Errorf("%w: date is in the past", domain.ErrValidation)
	}
	if day.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return fmt.Errorf("%w: date is more than %d days ahead", domain.ErrValidation, s.maxBookingDays)
	}

	// Слот должен начинаться в будущем, иначе завершить встречу можно сразу
	slot := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), startAt.Hour(), startAt.Minute(), 0, 0, s.loc)
	if !slot.After(s.now()) {
		return fmt.Errorf("%w: start time %s has already passed", domain.ErrValidation, in.StartTime)
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, prev models.BookingStatus, role models.Role, actorID int64, at time.Time) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:     b.ID,
		RenterID:      b.RenterID,
		RenterName:    b.RenterName,
		CompanionID:   b.CompanionID,
		CompanionName: b.CompanionName,
		Date:          b.Date,
		StartTime:     b.StartTime,
		PreviousState: prev,
		Status:        b.Status,
		Notes:         lastNotes(b),
		ActorID:       actorID,
		ActorRole:     role,
		ChangedAt:     at,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func lastNotes(b *models.Booking) string {
	if n := len(b.StatusHistory); n > 0 {
		return b.StatusHistory[n-1].Notes
	}
	return b.Notes
}

// storeErr keeps domain outcomes as they are and marks everything else as
// a storage failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrMissingReason):
		return "missing_reason"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
