// Package main contains the entrypoint for the Telegram business bot.
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

	"github.com/textilepro/businessbot/internal/bot"
	"github.com/textilepro/businessbot/internal/bot/handlers"
	"github.com/textilepro/businessbot/internal/bot/tasks"
	"github.com/textilepro/businessbot/internal/config"
	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/gemini"
	"github.com/textilepro/businessbot/internal/logger"
	"github.com/textilepro/businessbot/internal/loopdetect"
	"github.com/textilepro/businessbot/internal/router"
	"github.com/textilepro/businessbot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// ai client, detector, router, telegram bot, webhook server, scheduler),
// handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	detector := loopdetect.New(loopdetect.Config{
		MinMessageInterval: cfg.Loop.MinMessageInterval,
		DuplicateWindow:    cfg.Loop.DuplicateWindow,
		MaxTrackedMessages: cfg.Loop.MaxTrackedMessages,
		Signatures:         cfg.Loop.BotSignatures,
		Greetings:          cfg.Loop.BotGreetings,
	}, log)

	msgRouter := router.New(store, detector, log)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		Router:       msgRouter,
		Detector:     detector,
		GeminiClient: gemClient,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewDispatcher(hDeps)),
		tgbot.WithWebhookSecretToken(cfg.Telegram.WebhookSecret),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info",
		"bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	if err := telegram.SetupWebhook(ctx, tg, cfg.Telegram, log); err != nil {
		log.Error("Failed to set up webhook", "error", err)
		return 1
	}

	webhookSrv := telegram.NewWebhookServer(tg, cfg, store, log)

	tDeps := tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Detector: detector,
	}
	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))

	app := bot.NewBot(log, cfg, db, store, tg, webhookSrv, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
