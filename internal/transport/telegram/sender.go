package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender implements dispatch.Sender over the Bot API. The underlying HTTP
// client bounds each call; the context is checked up front because the Bot
// API binding does not thread it through.
type Sender struct {
	api *tgbotapi.BotAPI
}

// NewSender wraps an API client for outbound deliveries.
func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// SendLocation pushes a location pin to the chat.
func (s *Sender) SendLocation(ctx context.Context, chatID int64, lat, lon float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.api.Send(tgbotapi.NewLocation(chatID, lat, lon))
	return err
}

// SendText pushes a plain text message to the chat.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
