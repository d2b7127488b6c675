package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"geowarn/internal/geofence"
	"geowarn/internal/registry"
)

// Callback data for the region picker.
const (
	pickerPrefix = "regions:"
	pickerDone   = "done"
	pickerCancel = "cancel"
)

// pickerState holds each user's in-flight region selection. Purely
// presentational: nothing here is persisted, and abandoning the picker just
// leaves a stale entry that the next /regions replaces.
type pickerState struct {
	mu       sync.Mutex
	selected map[int64]map[string]bool
}

func newPickerState() *pickerState {
	return &pickerState{selected: make(map[int64]map[string]bool)}
}

// open seeds the working set from the current subscription.
func (p *pickerState) open(userID int64, current []string) map[string]bool {
	sel := make(map[string]bool, len(current))
	for _, id := range current {
		sel[id] = true
	}
	p.mu.Lock()
	p.selected[userID] = sel
	p.mu.Unlock()
	return sel
}

// toggle flips one region and returns the updated set, or nil when no picker
// is open for the user (stale button on an old message).
func (p *pickerState) toggle(userID int64, regionID string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, ok := p.selected[userID]
	if !ok {
		return nil
	}
	if sel[regionID] {
		delete(sel, regionID)
	} else {
		sel[regionID] = true
	}
	return sel
}

// close discards the working set and returns the final selection.
func (p *pickerState) close(userID int64) (map[string]bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, ok := p.selected[userID]
	delete(p.selected, userID)
	return sel, ok
}

// regionKeyboard renders one button per region with a checkmark on selected
// entries, then the Done/Cancel row.
func regionKeyboard(regions []geofence.Region, selected map[string]bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(regions)+1)
	for _, r := range regions {
		label := r.DisplayName
		if selected[r.ID] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, pickerPrefix+r.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Done", pickerPrefix+pickerDone),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", pickerPrefix+pickerCancel),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func selectionIDs(regions []geofence.Region, selected map[string]bool) []string {
	// Region table order keeps the committed set stable.
	out := make([]string, 0, len(selected))
	for _, r := range regions {
		if selected[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out
}

func (b *Bot) sendRegionPicker(chatID, userID int64) {
	var current []string
	if sub, err := b.registry.Get(userID); err == nil {
		current = sub.Regions
	}
	sel := b.picker.open(userID, current)

	msg := tgbotapi.NewMessage(chatID, "Pick the regions you want alerts for:")
	msg.ReplyMarkup = regionKeyboard(b.regions.All(), sel)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("region picker send failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Always ack so the client stops its spinner.
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("callback ack failed", "error", err)
		}
	}()

	if cb.From == nil || cb.Message == nil || !strings.HasPrefix(cb.Data, pickerPrefix) {
		return
	}
	action := strings.TrimPrefix(cb.Data, pickerPrefix)
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	switch action {
	case pickerDone:
		sel, ok := b.picker.close(userID)
		if !ok {
			return
		}
		b.commitSelection(ctx, chatID, userID, selectionIDs(b.regions.All(), sel))
		b.clearKeyboard(chatID, cb.Message.MessageID)
	case pickerCancel:
		b.picker.close(userID)
		b.clearKeyboard(chatID, cb.Message.MessageID)
		b.reply(chatID, "No changes saved.")
	default:
		if !b.regions.Has(action) {
			return
		}
		sel := b.picker.toggle(userID, action)
		if sel == nil {
			return
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID,
			regionKeyboard(b.regions.All(), sel))
		if _, err := b.api.Send(edit); err != nil {
			b.logger.Debug("picker keyboard edit failed", "error", err)
		}
	}
}

func (b *Bot) commitSelection(ctx context.Context, chatID, userID int64, ids []string) {
	var err error
	if _, getErr := b.registry.Get(userID); errors.Is(getErr, registry.ErrNotFound) {
		err = b.registry.Register(ctx, userID, ids, true)
	} else {
		err = b.registry.UpdateRegions(ctx, userID, ids)
	}
	if err != nil {
		b.logger.Warn("subscription update failed", "user", userID, "error", err)
		b.reply(chatID, "Could not save your subscription, try again.")
		return
	}

	if len(ids) == 0 {
		b.reply(chatID, "Subscription saved: no regions selected.")
		return
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := b.regions.Get(id); ok {
			names = append(names, r.DisplayName)
		}
	}
	b.reply(chatID, "Subscribed to: "+strings.Join(names, ", "))
}

func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Debug("keyboard clear failed", "error", err)
	}
}
