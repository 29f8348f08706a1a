package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID            int64                `json:"id" db:"id"`
	RenterID      int64                `json:"renter_id" db:"renter_id"`
	RenterName    string               `json:"renter_name" db:"renter_name"`
	CompanionID   int64                `json:"companion_id" db:"companion_id"`
	CompanionName string               `json:"companion_name" db:"companion_name"`
	Date          time.Time            `json:"date" db:"date"`
	StartTime     string               `json:"start_time" db:"start_time"`
	DurationHours int                  `json:"duration_hours" db:"duration_hours"`
	TotalPrice    decimal.Decimal      `json:"total_price" db:"total_price"`
	Status        BookingStatus        `json:"status" db:"status"` // pending, approved, rejected, completed, cancelled
	PaymentStatus string               `json:"payment_status" db:"payment_status"`
	Notes         string               `json:"notes" db:"notes"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at" db:"updated_at"`
	Version       int64                `json:"version" db:"version"`
	StatusHistory []StatusHistoryEntry `json:"status_history,omitempty" db:"-"`
}

// StartsAt combines Date and StartTime in the location of Date.
func (b *Booking) StartsAt() time.Time {
	t, err := time.Parse(TimeLayout, b.StartTime)
	if err != nil {
		return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, b.Date.Location())
	}
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), t.Hour(), t.Minute(), 0, 0, b.Date.Location())
}

// EndsAt is the scheduled end of the booked slot.
func (b *Booking) EndsAt() time.Time {
	return b.StartsAt().Add(time.Duration(b.DurationHours) * time.Hour)
}

// IsParty reports whether userID is the renter or the companion.
func (b *Booking) IsParty(userID int64) bool {
	return userID != 0 && (b.RenterID == userID || b.CompanionID == userID)
}

// StatusHistoryEntry is one row of the append-only audit trail.
type StatusHistoryEntry struct {
	ID        int64         `json:"-" db:"id"`
	BookingID int64         `json:"booking_id" db:"booking_id"`
	Status    BookingStatus `json:"status" db:"status"`
	Timestamp time.Time     `json:"timestamp" db:"changed_at"`
	Notes     string        `json:"notes,omitempty" db:"notes"`
	ChangedBy int64         `json:"changed_by" db:"changed_by"`
}

// BookingFilter narrows FetchBookings. Zero values mean "no constraint".
type BookingFilter struct {
	Status      BookingStatus
	From        time.Time
	To          time.Time
	CompanionID int64
	RenterID    int64
	Search      string
	// PartyID restricts results to bookings where the user is renter or companion.
	PartyID int64
	Limit   int
	Offset  int
}

// Normalize clamps paging values.
func (f *BookingFilter) Normalize() {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
