// Package main contains the entrypoint for the broadcast bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"adcaster/internal/bot"
	"adcaster/internal/bot/handlers"
	"adcaster/internal/bot/tasks"
	"adcaster/internal/broadcast"
	"adcaster/internal/config"
	"adcaster/internal/database"
	"adcaster/internal/logger"
	"adcaster/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	// The default handler needs the broadcast service, which needs the bot
	// instance the handler is an option of. The indirection breaks the
	// cycle; menu is assigned before the listener starts.
	var menu tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			menu(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	gw, err := telegram.NewGateway(ctx, log, tg)
	if err != nil {
		log.Error("Failed to initialize Telegram gateway", "error", err)
		return 1
	}

	admission := broadcast.NewAdmissionCache(log, gw, store, cfg.Broadcast.AdmissionCacheSize, cfg.Broadcast.AdmissionTTL)
	queue := broadcast.NewQueue(log, store, gw, &cfg.Broadcast)
	broadcaster := broadcast.NewBroadcaster(log, store, queue, admission, &cfg.Broadcast)
	service := broadcast.NewService(log, store, gw, queue, admission, broadcaster)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Service:  service,
		Sessions: handlers.NewSessions(),
	}
	menu = handlers.AdminOnly(hDeps)(handlers.NewMenuHandler(hDeps))

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:    log,
		Store:     store,
		Admission: admission,
		Config:    cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, tg, queue, broadcaster, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
