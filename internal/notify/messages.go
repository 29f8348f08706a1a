package notify

import (
	"fmt"
	"strings"

	"companion/internal/events"
	"companion/internal/models"
)

// Recipients returns the users to notify about an event. A new booking goes
// to the companion; every other change goes to the parties who did not act.
func Recipients(eventType string, p events.BookingEventPayload) []int64 {
	if eventType == events.EventBookingCreated {
		return []int64{p.CompanionID}
	}

	var out []int64
	for _, id := range []int64{p.RenterID, p.CompanionID} {
		if id != 0 && id != p.ActorID {
			out = append(out, id)
		}
	}
	return out
}

// Message renders the notification text for one event.
func Message(eventType string, p events.BookingEventPayload) string {
	when := fmt.Sprintf("%s %s", p.Date.Format(models.DateLayout), p.StartTime)

	var b strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		fmt.Fprintf(&b, "New booking request #%d from %s for %s.", p.BookingID, nameOr(p.RenterName, "a renter"), when)
	case events.EventBookingApproved:
		fmt.Fprintf(&b, "Booking #%d with %s on %s was approved.", p.BookingID, nameOr(p.CompanionName, "your companion"), when)
	case events.EventBookingRejected:
		fmt.Fprintf(&b, "Booking #%d on %s was rejected.", p.BookingID, when)
	case events.EventBookingCancelled:
		fmt.Fprintf(&b, "Booking #%d on %s was cancelled", p.BookingID, when)
		if p.ActorRole == models.RoleAdmin {
			b.WriteString(" by an administrator")
		}
		b.WriteString(".")
	case events.EventBookingCompleted:
		fmt.Fprintf(&b, "Booking #%d on %s is completed. Thank you!", p.BookingID, when)
	case events.EventBookingReminder:
		fmt.Fprintf(&b, "Reminder: booking #%d between %s and %s starts tomorrow at %s.", p.BookingID, nameOr(p.RenterName, "the renter"), nameOr(p.CompanionName, "the companion"), p.StartTime)
		return b.String()
	default:
		fmt.Fprintf(&b, "Booking #%d is now %s.", p.BookingID, p.Status)
	}

	if notes := strings.TrimSpace(p.Notes); notes != "" && eventType != events.EventBookingCreated {
		fmt.Fprintf(&b, " Note: %s", notes)
	}
	return b.String()
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
