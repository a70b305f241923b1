package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"adcaster/internal/broadcast"
	"adcaster/internal/database"
)

// NewMenuHandler returns the default handler. It routes menu button presses
// and carries multi-message flows (advertisement capture, group
// registration, schedule settings) through the session store.
func NewMenuHandler(deps HandlerDeps) bot.HandlerFunc {
	return menuHandler{deps}.Handle
}

type menuHandler struct {
	deps HandlerDeps
}

func (h menuHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "menu")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID

	// Back cancels whatever flow is in progress, from anywhere.
	if msg.Text == btnBack {
		h.deps.Sessions.Clear(chatID)
		sendMenu(ctx, b, log, chatID, "Back to the main menu.")
		return
	}

	sess := h.deps.Sessions.Get(chatID)
	switch sess.Step {
	case stepAdKind:
		h.handleAdKind(ctx, b, log, msg)
	case stepAdContent:
		h.handleAdContent(ctx, b, log, msg, sess.AdKind)
	case stepGroupHandle:
		h.handleGroupHandle(ctx, b, log, msg)
	case stepScheduleMenu:
		h.handleScheduleMenu(ctx, b, log, msg)
	case stepInterval:
		h.handleInterval(ctx, b, log, msg)
	case stepMaxSends:
		h.handleMaxSends(ctx, b, log, msg)
	default:
		h.handleMainMenu(ctx, b, log, msg)
	}
}

func (h menuHandler) handleMainMenu(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	switch msg.Text {
	case btnSetAd:
		h.deps.Sessions.Set(chatID, session{Step: stepAdKind})
		sendWithKeyboard(ctx, b, log, chatID, "What kind of advertisement?", adKindKeyboard())

	case btnAddGroup:
		h.deps.Sessions.Set(chatID, session{Step: stepGroupHandle})
		sendText(ctx, b, log, chatID, "Send the group's public handle, e.g. @mygroup. The bot must already be an admin there.")

	case btnListGroups:
		h.listGroups(ctx, b, log, chatID)

	case btnSchedule:
		h.deps.Sessions.Set(chatID, session{Step: stepScheduleMenu})
		sendWithKeyboard(ctx, b, log, chatID, "Schedule settings:", scheduleKeyboard())

	case btnStart:
		h.startBroadcast(ctx, b, log, chatID)

	case btnStop:
		if err := h.deps.Service.StopBroadcast(ctx); err != nil {
			log.ErrorContext(ctx, "Failed to stop broadcast", "error", err, "chat_id", chatID)
			sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
			return
		}
		sendMenu(ctx, b, log, chatID, "⛔ Broadcast stopped.")

	case btnStatus:
		NewStatusHandler(h.deps)(ctx, b, &models.Update{Message: msg})

	default:
		sendMenu(ctx, b, log, chatID, "Pick an action from the menu below.")
	}
}

func (h menuHandler) handleAdKind(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	var kind database.Kind
	switch msg.Text {
	case btnKindText:
		kind = database.KindText
	case btnKindPhoto:
		kind = database.KindPhoto
	case btnKindVideo:
		kind = database.KindVideo
	case btnKindDocument:
		kind = database.KindDocument
	default:
		sendWithKeyboard(ctx, b, log, chatID, "Pick one of the kinds below.", adKindKeyboard())
		return
	}

	h.deps.Sessions.Set(chatID, session{Step: stepAdContent, AdKind: kind})

	var prompt string
	switch kind {
	case database.KindText:
		prompt = "Send the advertisement text."
	case database.KindPhoto:
		prompt = "Send the photo. A caption becomes part of the advertisement."
	case database.KindVideo:
		prompt = "Send the video. A caption becomes part of the advertisement."
	case database.KindDocument:
		prompt = "Send the file. A caption becomes part of the advertisement."
	}
	sendText(ctx, b, log, chatID, prompt)
}

func (h menuHandler) handleAdContent(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message, kind database.Kind) {
	chatID := msg.Chat.ID

	body, fileID, ok := extractContent(msg, kind)
	if !ok {
		sendText(ctx, b, log, chatID, fmt.Sprintf("That message does not contain a %s. Send one, or go back with %s.", kind, btnBack))
		return
	}

	if _, err := h.deps.Service.SetAdvertisement(ctx, kind, body, fileID); err != nil {
		if errors.Is(err, broadcast.ErrInvalidValue) {
			sendText(ctx, b, log, chatID, "That advertisement is empty. Send the content again.")
			return
		}
		log.ErrorContext(ctx, "Failed to store advertisement", "error", err, "chat_id", chatID, "kind", kind)
		sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
		h.deps.Sessions.Clear(chatID)
		return
	}

	h.deps.Sessions.Clear(chatID)
	sendMenu(ctx, b, log, chatID, "✅ Advertisement saved. It replaces the previous one.")
}

func (h menuHandler) handleGroupHandle(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	dest, err := h.deps.Service.RegisterDestination(ctx, msg.Text)
	if err != nil {
		switch {
		case errors.Is(err, broadcast.ErrInvalidValue):
			sendText(ctx, b, log, chatID, "Send the handle like @mygroup.")
		case errors.Is(err, broadcast.ErrChatNotFound):
			sendText(ctx, b, log, chatID, "No group found with that handle. Check the spelling and try again.")
		case errors.Is(err, broadcast.ErrNotAuthorized):
			sendText(ctx, b, log, chatID, "The bot is not an admin of that group. Promote it first, then try again.")
		default:
			log.ErrorContext(ctx, "Failed to register group", "error", err, "chat_id", chatID)
			sendText(ctx, b, log, chatID, "Could not reach Telegram just now, try again in a moment.")
		}
		return
	}

	h.deps.Sessions.Clear(chatID)
	sendMenu(ctx, b, log, chatID, fmt.Sprintf("✅ Group added: %s (@%s)", dest.Title, dest.Username))
}

func (h menuHandler) handleScheduleMenu(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	switch msg.Text {
	case btnSetInterval:
		h.deps.Sessions.Set(chatID, session{Step: stepInterval})
		sendText(ctx, b, log, chatID, "Send the interval between cycles, in minutes (at least 1).")
	case btnSetMaxSends:
		h.deps.Sessions.Set(chatID, session{Step: stepMaxSends})
		sendText(ctx, b, log, chatID, "Send the number of cycles to run before stopping, or 0 for no limit.")
	default:
		sendWithKeyboard(ctx, b, log, chatID, "Pick a setting below.", scheduleKeyboard())
	}
}

func (h menuHandler) handleInterval(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	minutes, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || minutes < 1 {
		sendText(ctx, b, log, chatID, "Send a whole number of minutes, at least 1.")
		return
	}

	interval := time.Duration(minutes) * time.Minute
	if err := h.deps.Service.Configure(ctx, &interval, nil); err != nil {
		log.ErrorContext(ctx, "Failed to set interval", "error", err, "chat_id", chatID)
		sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
		h.deps.Sessions.Clear(chatID)
		return
	}

	h.deps.Sessions.Clear(chatID)
	sendMenu(ctx, b, log, chatID, fmt.Sprintf("✅ Interval set to %d minute(s).", minutes))
}

func (h menuHandler) handleMaxSends(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	n, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || n < 0 {
		sendText(ctx, b, log, chatID, "Send a whole number, 0 or more.")
		return
	}

	if err := h.deps.Service.Configure(ctx, nil, &n); err != nil {
		log.ErrorContext(ctx, "Failed to set send limit", "error", err, "chat_id", chatID)
		sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
		h.deps.Sessions.Clear(chatID)
		return
	}

	h.deps.Sessions.Clear(chatID)
	if n == 0 {
		sendMenu(ctx, b, log, chatID, "✅ Send limit removed, the broadcast runs until stopped.")
	} else {
		sendMenu(ctx, b, log, chatID, fmt.Sprintf("✅ The broadcast will stop after %d cycle(s). The counter was reset.", n))
	}
}

func (h menuHandler) listGroups(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64) {
	dests, err := h.deps.Service.ListDestinations(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list groups", "error", err, "chat_id", chatID)
		sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
		return
	}

	if len(dests) == 0 {
		sendMenu(ctx, b, log, chatID, "No groups registered yet. Use "+btnAddGroup+" to add one.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Registered groups (%d):\n\n", len(dests))
	for i, d := range dests {
		fmt.Fprintf(&sb, "%d. %s (@%s, id %d)\n", i+1, d.Title, d.Username, d.ChatID)
	}
	sendMenu(ctx, b, log, chatID, sb.String())
}

func (h menuHandler) startBroadcast(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64) {
	err := h.deps.Service.StartBroadcast(ctx)
	switch {
	case err == nil:
		sendMenu(ctx, b, log, chatID, "▶️ Broadcast started.")
	case errors.Is(err, broadcast.ErrAlreadyRunning):
		sendMenu(ctx, b, log, chatID, "The broadcast is already running.")
	case errors.Is(err, broadcast.ErrNoActiveAd):
		sendMenu(ctx, b, log, chatID, "No advertisement registered yet. Use "+btnSetAd+" first.")
	case errors.Is(err, broadcast.ErrNoDestinations):
		sendMenu(ctx, b, log, chatID, "No groups registered yet. Use "+btnAddGroup+" first.")
	default:
		log.ErrorContext(ctx, "Failed to start broadcast", "error", err, "chat_id", chatID)
		sendMenu(ctx, b, log, chatID, "Something went wrong, please try again.")
	}
}

// extractContent pulls the advertisement payload out of a message according
// to the expected kind.
func extractContent(msg *models.Message, kind database.Kind) (body, fileID string, ok bool) {
	switch kind {
	case database.KindText:
		if strings.TrimSpace(msg.Text) == "" {
			return "", "", false
		}
		return msg.Text, "", true
	case database.KindPhoto:
		if len(msg.Photo) == 0 {
			return "", "", false
		}
		// The last size is the largest rendition.
		return msg.Caption, msg.Photo[len(msg.Photo)-1].FileID, true
	case database.KindVideo:
		if msg.Video == nil {
			return "", "", false
		}
		return msg.Caption, msg.Video.FileID, true
	case database.KindDocument:
		if msg.Document == nil {
			return "", "", false
		}
		return msg.Caption, msg.Document.FileID, true
	}
	return "", "", false
}

func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

func sendMenu(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	sendWithKeyboard(ctx, b, log, chatID, text, mainKeyboard())
}

func sendWithKeyboard(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string, kb *models.ReplyKeyboardMarkup) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: kb})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}
