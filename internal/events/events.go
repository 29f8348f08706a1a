package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"companion/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingApproved  = "booking_approved"
	EventBookingRejected  = "booking_rejected"
	EventBookingCancelled = "booking_cancelled"
	EventBookingCompleted = "booking_completed"

	// EventBookingReminder is not a status change; it only feeds notifications.
	EventBookingReminder = "booking_reminder"
)

// BookingEvents lists every booking event type.
var BookingEvents = []string{
	EventBookingCreated,
	EventBookingApproved,
	EventBookingRejected,
	EventBookingCancelled,
	EventBookingCompleted,
}

// NotificationEvents are the events that produce user notifications.
var NotificationEvents = append(append([]string{}, BookingEvents...), EventBookingReminder)

// TypeForStatus maps the status a booking entered to its event type.
func TypeForStatus(status models.BookingStatus) (string, bool) {
	switch status {
	case models.StatusPending:
		return EventBookingCreated, true
	case models.StatusApproved:
		return EventBookingApproved, true
	case models.StatusRejected:
		return EventBookingRejected, true
	case models.StatusCancelled:
		return EventBookingCancelled, true
	case models.StatusCompleted:
		return EventBookingCompleted, true
	default:
		return "", false
	}
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64                `json:"booking_id"`
	RenterID      int64                `json:"renter_id"`
	RenterName    string               `json:"renter_name,omitempty"`
	CompanionID   int64                `json:"companion_id"`
	CompanionName string               `json:"companion_name,omitempty"`
	Date          time.Time            `json:"date"`
	StartTime     string               `json:"start_time"`
	PreviousState models.BookingStatus `json:"previous_status,omitempty"`
	Status        models.BookingStatus `json:"status"`
	Notes         string               `json:"notes,omitempty"`
	ActorID       int64                `json:"actor_id"`
	ActorRole     models.Role          `json:"actor_role"`
	ChangedAt     time.Time            `json:"changed_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodeBooking unpacks a booking payload.
func (e *Event) DecodeBooking() (BookingEventPayload, error) {
	var p BookingEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
// Handler errors and panics are logged and never reach the publisher.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for one or more event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type synchronously.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *EventBus) dispatch(handler EventHandler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", event.Type).Msg("Event handler panicked")
		}
	}()
	if err := handler(event); err != nil {
		b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
