package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID             int64           `json:"id" db:"id"`
	DisplayName    string          `json:"display_name" db:"display_name"`
	Email          string          `json:"email" db:"email"`
	City           string          `json:"city" db:"city"`
	Interests      []string        `json:"interests" db:"-"`
	HourlyRate     decimal.Decimal `json:"hourly_rate" db:"hourly_rate"`
	IsCompanion    bool            `json:"is_companion" db:"is_companion"`
	IsOnline       bool            `json:"is_online" db:"is_online"`
	TelegramChatID int64           `json:"-" db:"telegram_chat_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Actor identifies who performs an operation. It is passed explicitly to
// every service call; roles are resolved from storage, never from the caller.
type Actor struct {
	UserID int64
}

// IsZero reports an unauthenticated actor.
func (a Actor) IsZero() bool {
	return a.UserID == 0
}
