package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"adcaster/internal/broadcast"
	"adcaster/internal/database"
)

// Gateway adapts the go-telegram/bot client to the broadcast engine's
// delivery contract. It classifies every API failure as transient or
// permanent so the delivery queue never has to know Telegram error shapes.
type Gateway struct {
	logger *slog.Logger
	b      *bot.Bot
	selfID int64
}

var _ broadcast.Gateway = (*Gateway)(nil)

// NewGateway wraps the bot client. It calls getMe once to learn the bot's
// own user ID, which the membership checks need.
func NewGateway(ctx context.Context, logger *slog.Logger, b *bot.Bot) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_gateway")

	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot identity: %w", err)
	}

	log.Info("Telegram gateway ready", "bot_id", me.ID, "bot_username", me.Username)
	return &Gateway{logger: log, b: b, selfID: me.ID}, nil
}

// SelfID returns the bot's own user ID.
func (g *Gateway) SelfID() int64 {
	return g.selfID
}

// Send delivers the advertisement to the chat according to its kind. Media
// kinds reuse the stored file ID, so no payload is re-uploaded.
func (g *Gateway) Send(ctx context.Context, chatID int64, ad database.Advertisement) error {
	var err error

	switch ad.Kind {
	case database.KindText:
		_, err = g.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   ad.Body,
		})
	case database.KindPhoto:
		_, err = g.b.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: ad.FileID},
			Caption: ad.Body,
		})
	case database.KindVideo:
		_, err = g.b.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:  chatID,
			Video:   &models.InputFileString{Data: ad.FileID},
			Caption: ad.Body,
		})
	case database.KindDocument:
		_, err = g.b.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileString{Data: ad.FileID},
			Caption:  ad.Body,
		})
	default:
		return &broadcast.PermanentError{Err: fmt.Errorf("unsupported advertisement kind %q", ad.Kind)}
	}

	if err != nil {
		return classify(err)
	}
	return nil
}

// MembershipStatus returns the bot's own membership status in the chat.
func (g *Gateway) MembershipStatus(ctx context.Context, chatID int64) (string, error) {
	member, err := g.b.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: g.selfID,
	})
	if err != nil {
		return "", classify(err)
	}
	return memberStatus(member), nil
}

// ResolveChat resolves a public handle (without the leading @) to chat
// identity.
func (g *Gateway) ResolveChat(ctx context.Context, handle string) (*broadcast.ChatInfo, error) {
	chat, err := g.b.GetChat(ctx, &bot.GetChatParams{ChatID: "@" + handle})
	if err != nil {
		return nil, classify(err)
	}
	return &broadcast.ChatInfo{
		ID:       chat.ID,
		Title:    chat.Title,
		Username: chat.Username,
	}, nil
}

// memberStatus flattens the chat member union into the status string the
// broadcast engine compares against.
func memberStatus(member *models.ChatMember) string {
	switch member.Type {
	case models.ChatMemberTypeOwner:
		return broadcast.StatusCreator
	case models.ChatMemberTypeAdministrator:
		return broadcast.StatusAdministrator
	case models.ChatMemberTypeMember:
		return "member"
	case models.ChatMemberTypeRestricted:
		return "restricted"
	case models.ChatMemberTypeLeft:
		return "left"
	case models.ChatMemberTypeBanned:
		return "kicked"
	}
	return "unknown"
}

// classify maps a go-telegram/bot error to the broadcast error taxonomy.
// Rate limits carry the server's retry-after hint; removals, bad requests
// and missing chats are permanent; everything else (timeouts, network
// faults, 5xx) is worth retrying.
func classify(err error) error {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &broadcast.TransientError{
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	if errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorNotFound) {
		return &broadcast.PermanentError{Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &broadcast.TransientError{Err: err}
	}

	return &broadcast.TransientError{Err: err}
}
