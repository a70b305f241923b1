package handlers

import (
	"log/slog"

	"adcaster/internal/broadcast"
	"adcaster/internal/config"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Service  *broadcast.Service
	Sessions *Sessions
}
