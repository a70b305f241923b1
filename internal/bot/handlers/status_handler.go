package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatusHandler returns a handler for the /status command and the
// status menu button.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	st, err := h.deps.Service.Status(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read broadcast status", "error", err, "chat_id", chatID)
		sendText(ctx, b, log, chatID, "Something went wrong, please try again.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 Broadcast status\n\n")
	if st.Running {
		sb.WriteString("State: ▶️ running\n")
	} else {
		sb.WriteString("State: ⛔ stopped\n")
	}
	if st.AdPresent {
		fmt.Fprintf(&sb, "Advertisement: %s\n", st.AdKind)
	} else {
		sb.WriteString("Advertisement: none\n")
	}
	fmt.Fprintf(&sb, "Active groups: %d\n", st.ActiveDestinations)
	fmt.Fprintf(&sb, "Interval: %s\n", st.Interval)
	if st.MaxSends > 0 {
		fmt.Fprintf(&sb, "Cycles: %d of %d\n", st.SentCount, st.MaxSends)
	} else {
		fmt.Fprintf(&sb, "Cycles: %d (no limit)\n", st.SentCount)
	}
	fmt.Fprintf(&sb, "Queued deliveries: %d\n", st.QueueDepth)

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        sb.String(),
		ReplyMarkup: mainKeyboard(),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send status message", "error", err, "chat_id", chatID)
	}
}
