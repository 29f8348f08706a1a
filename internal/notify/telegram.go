package notify

import (
	"context"
	"errors"
	"fmt"

	"companion/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ErrNoChannel means the recipient has no external delivery channel.
// The notification stays readable through the API.
var ErrNoChannel = errors.New("recipient has no delivery channel")

// Sender is the part of tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramDeliverer struct {
	bot Sender
}

func NewTelegramDeliverer(bot Sender) *TelegramDeliverer {
	return &TelegramDeliverer{bot: bot}
}

// NewTelegramBot авторизуется по токену.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return bot, nil
}

func (d *TelegramDeliverer) Deliver(_ context.Context, user *models.User, n *models.Notification) error {
	if user == nil || user.TelegramChatID == 0 {
		return ErrNoChannel
	}
	msg := tgbotapi.NewMessage(user.TelegramChatID, n.Message)
	if _, err := d.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", user.TelegramChatID, err)
	}
	return nil
}

// LogDeliverer is used when no Telegram token is configured.
type LogDeliverer struct {
	logger *zerolog.Logger
}

func NewLogDeliverer(logger *zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(_ context.Context, user *models.User, n *models.Notification) error {
	d.logger.Info().
		Int64("user_id", user.ID).
		Int64("booking_id", n.BookingID).
		Str("kind", n.Kind).
		Str("message", n.Message).
		Msg("Notification delivered to log")
	return nil
}
