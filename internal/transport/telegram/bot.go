// Package telegram adapts the Bot API to the ingestion pipeline: it turns raw
// location updates into typed events, renders the registration UI, and routes
// subscriber commands. Business rules live in the pipeline and registry; this
// layer stays thin.
package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"geowarn/internal/geofence"
	"geowarn/internal/pipeline"
	"geowarn/internal/registry"
	"geowarn/internal/sighting"
)

// pollTimeout is the long-poll window; the HTTP client timeout must exceed it.
const pollTimeout = 30

// Config scopes the adapter.
type Config struct {
	// FeedChatID restricts ingestion to one chat; 0 accepts location messages
	// from any chat. The pipeline itself never inspects chat identity.
	FeedChatID int64
	WebAppURL  string
}

// Bot is the transport adapter.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      Config
	pipe     *pipeline.Pipeline
	registry *registry.Registry
	store    *sighting.Store
	regions  *geofence.Index
	mirrored bool // whether a mirror target is configured, for /stats
	logger   *slog.Logger
	picker   *pickerState
}

// NewAPI dials the Bot API with a client timeout that accommodates long
// polling.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: (pollTimeout + 20) * time.Second}
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
}

// New creates the adapter around an already-dialed API client.
func New(
	api *tgbotapi.BotAPI,
	cfg Config,
	pipe *pipeline.Pipeline,
	reg *registry.Registry,
	store *sighting.Store,
	regions *geofence.Index,
	mirrored bool,
	logger *slog.Logger,
) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		pipe:     pipe,
		registry: reg,
		store:    store,
		regions:  regions,
		mirrored: mirrored,
		logger:   logger,
		picker:   newPickerState(),
	}
}

// Run consumes updates until the context is canceled. Updates are handled
// sequentially on this goroutine; only mirror pushes and fan-out suspend.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	u.AllowedUpdates = []string{"message", "channel_post", "callback_query"}

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram loop started", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	post := update.Message
	if post == nil {
		post = update.ChannelPost
	}
	if post == nil {
		return
	}

	switch {
	case post.Location != nil:
		b.handleLocation(ctx, post)
	case post.IsCommand():
		b.handleCommand(ctx, post)
	}
}

// handleLocation is the ingestion entry point: scope check, then parse into a
// typed event at the boundary and hand off to the pipeline.
func (b *Bot) handleLocation(ctx context.Context, post *tgbotapi.Message) {
	if b.cfg.FeedChatID != 0 && post.Chat.ID != b.cfg.FeedChatID {
		b.logger.Debug("location from out-of-scope chat ignored", "chat", post.Chat.ID)
		return
	}

	ev := pipeline.Event{
		Latitude:        post.Location.Latitude,
		Longitude:       post.Location.Longitude,
		SourceChatID:    post.Chat.ID,
		SourceMessageID: int64(post.MessageID),
		SenderLabel:     senderLabel(post),
		OccurredAt:      time.Unix(int64(post.Date), 0),
	}

	outcome, err := b.pipe.Ingest(ctx, ev)
	if err != nil {
		b.logger.Warn("inbound event dropped", "outcome", outcome.String(), "error", err)
		return
	}
	b.logger.Debug("inbound event processed", "outcome", outcome.String())
}

func senderLabel(post *tgbotapi.Message) string {
	if post.From != nil && post.From.FirstName != "" {
		return post.From.FirstName
	}
	return "channel"
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("reply failed", "chat", chatID, "error", err)
	}
}
