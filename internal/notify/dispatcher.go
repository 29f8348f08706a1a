package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion/internal/domain"
	"companion/internal/events"
	"companion/internal/models"

	"github.com/rs/zerolog"
)

// Dispatcher turns booking events into stored notifications and queued
// delivery tasks. Its failures are logged by the bus and never reach the
// code that changed the booking.
type Dispatcher struct {
	notifications domain.NotificationRepository
	tasks         domain.DeliveryTaskRepository
	queue         domain.TaskQueue
	logger        *zerolog.Logger
	timeout       time.Duration
}

func NewDispatcher(
	notifications domain.NotificationRepository,
	tasks domain.DeliveryTaskRepository,
	queue domain.TaskQueue,
	logger *zerolog.Logger,
) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		notifications: notifications,
		tasks:         tasks,
		queue:         queue,
		logger:        logger,
		timeout:       5 * time.Second,
	}
}

// Register subscribes the dispatcher to booking events and reminders.
func (d *Dispatcher) Register(bus *events.EventBus) {
	bus.Subscribe(d.Handle, events.NotificationEvents...)
}

func (d *Dispatcher) Handle(event *events.Event) error {
	payload, err := event.DecodeBooking()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var errs []error
	for _, userID := range Recipients(event.Type, payload) {
		if err := d.enqueue(ctx, userID, event.Type, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, userID int64, kind string, p events.BookingEventPayload) error {
	n := &models.Notification{
		UserID:    userID,
		BookingID: p.BookingID,
		Kind:      kind,
		Message:   Message(kind, p),
	}
	if err := d.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification for user %d: %w", userID, err)
	}

	task := &models.DeliveryTask{NotificationID: n.ID, Status: models.TaskStatusPending}
	if err := d.tasks.CreateDeliveryTask(ctx, task); err != nil {
		return fmt.Errorf("persist delivery task: %w", err)
	}

	// задача уже в базе; при сбое очереди ее подберет опрос воркера
	if err := d.queue.Push(ctx, *task); err != nil {
		d.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Queue push failed, task left to polling")
	}

	d.logger.Debug().
		Int64("booking_id", p.BookingID).
		Int64("user_id", userID).
		Str("kind", kind).
		Msg("Notification queued")
	return nil
}
