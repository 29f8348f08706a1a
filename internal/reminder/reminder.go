// Package reminder sends a daily notice about approved bookings that take
// place the next day.
package reminder

import (
	"context"
	"fmt"
	"time"

	"companion/internal/config"
	"companion/internal/domain"
	"companion/internal/events"
	"companion/internal/models"

	"github.com/rs/zerolog"
)

type BookingLister interface {
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
}

type Scheduler struct {
	bookings  BookingLister
	publisher domain.EventPublisher
	loc       *time.Location
	hour      int
	minute    int
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewScheduler(
	bookings BookingLister,
	publisher domain.EventPublisher,
	cfg config.ReminderConfig,
	loc *time.Location,
	logger *zerolog.Logger,
) (*Scheduler, error) {
	at, err := time.Parse(models.TimeLayout, cfg.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder time %q: %w", cfg.Time, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{
		bookings:  bookings,
		publisher: publisher,
		loc:       loc,
		hour:      at.Hour(),
		minute:    at.Minute(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start waits for the configured time of day, then fires once per day.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Int("hour", s.hour).Int("minute", s.minute).Msg("Reminder scheduler started")

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reminder scheduler stopped")
			return
		case <-timer.C:
			if _, err := s.SendTomorrow(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Reminder run failed")
			}
			timer.Reset(s.untilNext())
		}
	}
}

// SendTomorrow publishes a reminder for every approved booking dated
// tomorrow in the booking timezone. Returns the number of reminders sent.
func (s *Scheduler) SendTomorrow(ctx context.Context) (int, error) {
	local := s.now().In(s.loc)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, time.UTC)

	filter := models.BookingFilter{
		Status: models.StatusApproved,
		From:   tomorrow,
		To:     tomorrow,
		Limit:  models.MaxListLimit,
	}
	sent := 0
	for {
		page, err := s.bookings.ListBookings(ctx, filter)
		if err != nil {
			return sent, fmt.Errorf("list bookings for %s: %w", tomorrow.Format(models.DateLayout), err)
		}
		for _, b := range page {
			if err := s.publisher.PublishJSON(events.EventBookingReminder, payload(b, s.now())); err != nil {
				s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Reminder publish failed")
				continue
			}
			sent++
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	s.logger.Info().Str("date", tomorrow.Format(models.DateLayout)).Int("sent", sent).Msg("Reminders sent")
	return sent, nil
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func payload(b *models.Booking, at time.Time) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     b.ID,
		RenterID:      b.RenterID,
		RenterName:    b.RenterName,
		CompanionID:   b.CompanionID,
		CompanionName: b.CompanionName,
		Date:          b.Date,
		StartTime:     b.StartTime,
		Status:        b.Status,
		ChangedAt:     at.UTC(),
	}
}
