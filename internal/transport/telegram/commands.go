package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"geowarn/internal/mirror"
	"geowarn/internal/registry"
)

func (b *Bot) handleCommand(ctx context.Context, post *tgbotapi.Message) {
	if post.From == nil {
		return
	}
	chatID := post.Chat.ID
	userID := post.From.ID

	switch post.Command() {
	case "start":
		b.cmdStart(chatID)
	case "regions":
		b.sendRegionPicker(chatID, userID)
	case "notify":
		b.cmdNotify(ctx, chatID, userID)
	case "stats":
		b.cmdStats(chatID)
	case "grant":
		b.cmdGrant(ctx, chatID, userID, post.CommandArguments())
	case "revoke":
		b.cmdRevoke(ctx, chatID, userID, post.CommandArguments())
	case "clear":
		b.cmdClear(ctx, chatID, userID)
	case "export":
		b.cmdExport(chatID, userID)
	default:
		b.reply(chatID, "Unknown command. Try /regions, /notify or /stats.")
	}
}

func (b *Bot) cmdStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID,
		"👋 Hi! I track inspector sightings. Use /regions to pick the areas you care about.")
	if b.cfg.WebAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🗺 Open the sightings map", b.cfg.WebAppURL),
			),
		)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("start reply failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) cmdNotify(ctx context.Context, chatID, userID int64) {
	on, err := b.registry.ToggleNotifications(ctx, userID)
	if errors.Is(err, registry.ErrNotFound) {
		b.reply(chatID, "You are not registered yet — run /regions first.")
		return
	}
	if err != nil {
		b.reply(chatID, "Something went wrong, try again.")
		return
	}
	if on {
		b.reply(chatID, "🔔 Notifications enabled.")
	} else {
		b.reply(chatID, "🔕 Notifications disabled.")
	}
}

func (b *Bot) cmdStats(chatID int64) {
	total := b.store.Len()
	recent := b.store.CountSince(time.Now().Add(-4 * time.Hour))
	mirrorLine := "mirror: off"
	if b.mirrored {
		mirrorLine = "mirror: on"
	}
	b.reply(chatID, fmt.Sprintf(
		"📊 Stats\n\nStored sightings: %d\nLast 4 hours: %d\n%s", total, recent, mirrorLine))
}

func (b *Bot) cmdGrant(ctx context.Context, chatID, actorID int64, args string) {
	target, ok := parseTargetID(args)
	if !ok {
		b.reply(chatID, "Usage: /grant <numeric user id>")
		return
	}
	switch err := b.registry.GrantAdmin(ctx, actorID, target); {
	case errors.Is(err, registry.ErrPermissionDenied):
		b.reply(chatID, "Only the super-admin can grant admin.")
	case errors.Is(err, registry.ErrAlreadyPrivileged):
		b.reply(chatID, fmt.Sprintf("User %d is already privileged.", target))
	case err != nil:
		b.reply(chatID, "Something went wrong, try again.")
	default:
		b.reply(chatID, fmt.Sprintf("User %d is now an admin.", target))
	}
}

func (b *Bot) cmdRevoke(ctx context.Context, chatID, actorID int64, args string) {
	target, ok := parseTargetID(args)
	if !ok {
		b.reply(chatID, "Usage: /revoke <numeric user id>")
		return
	}
	switch err := b.registry.RevokeAdmin(ctx, actorID, target); {
	case errors.Is(err, registry.ErrPermissionDenied):
		b.reply(chatID, "Only the super-admin can revoke admin.")
	case errors.Is(err, registry.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("User %d is not an admin.", target))
	case err != nil:
		b.reply(chatID, "Something went wrong, try again.")
	default:
		b.reply(chatID, fmt.Sprintf("User %d is no longer an admin.", target))
	}
}

func (b *Bot) cmdClear(ctx context.Context, chatID, actorID int64) {
	if !b.registry.IsAdmin(actorID) {
		b.reply(chatID, "Admins only.")
		return
	}
	b.store.Clear(ctx)
	b.reply(chatID, "🗑 All stored sightings cleared.")
}

func (b *Bot) cmdExport(chatID, actorID int64) {
	if !b.registry.IsAdmin(actorID) {
		b.reply(chatID, "Admins only.")
		return
	}
	doc := mirror.BuildDocument(b.store.Snapshot(), time.Now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		b.reply(chatID, "Export failed.")
		return
	}
	file := tgbotapi.FileBytes{Name: "locations.json", Bytes: data}
	if _, err := b.api.Send(tgbotapi.NewDocument(chatID, file)); err != nil {
		b.logger.Warn("export send failed", "chat", chatID, "error", err)
	}
}

func parseTargetID(args string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
