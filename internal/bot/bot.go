// Package bot implements lifecycle management and component orchestration
// for the broadcast bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"adcaster/internal/broadcast"
)

// Bot represents the main application and manages its components'
// lifecycle: the Telegram update listener, the delivery queue workers, the
// broadcast loop, and the maintenance scheduler.
type Bot struct {
	logger      *slog.Logger
	tgBot       *tgbot.Bot
	queue       *broadcast.Queue
	broadcaster *broadcast.Broadcaster
	scheduler   *Scheduler
}

// NewBot creates a new instance of the bot with all required components.
func NewBot(
	logger *slog.Logger,
	tgBot *tgbot.Bot,
	queue *broadcast.Queue,
	broadcaster *broadcast.Broadcaster,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:      logger.With("component", "bot_orchestrator"),
		tgBot:       tgBot,
		queue:       queue,
		broadcaster: broadcaster,
		scheduler:   scheduler,
	}
}

// Run starts all components and blocks until the context is cancelled or
// one of them fails. Components share an errgroup, so any failure tears the
// rest down.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		return b.queue.Run(gCtx)
	})

	g.Go(func() error {
		err := b.broadcaster.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
