// Package telegram handles Telegram bot construction, handler registration,
// and the webhook HTTP server.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot"

	"github.com/textilepro/businessbot/internal/bot/handlers"
	"github.com/textilepro/businessbot/internal/config"
	"github.com/textilepro/businessbot/internal/database"
)

// allowedUpdates lists the update types the webhook subscribes to. Business
// update types must be requested explicitly or the Business API stays silent.
var allowedUpdates = []string{
	"message",
	"business_connection",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
}

// NewTelegramBot creates a new Telegram bot instance.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully")
	return b, nil
}

// applyMiddleware wraps a handler with a slice of middleware, first in the
// slice outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers registers command handlers with the bot instance.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	for _, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "pattern", regHandler.Pattern)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		log.Debug("Registered handler", "pattern", regHandler.Pattern,
			"middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Telegram handlers successfully", "count", len(registeredHandlers))
	return nil
}

// SetupWebhook clears any stale webhook and registers the configured one,
// subscribing to the business update types.
func SetupWebhook(ctx context.Context, b *bot.Bot, cfg config.TelegramConfig, logger *slog.Logger) error {
	log := logger.With("component", "webhook_setup")

	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
		log.Warn("Failed to delete existing webhook", "error", err)
	}

	ok, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            cfg.WebhookURL,
		SecretToken:    cfg.WebhookSecret,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("telegram rejected webhook registration")
	}

	log.Info("Webhook registered", "url", cfg.WebhookURL, "allowed_updates", allowedUpdates)
	return nil
}

// NewWebhookServer builds the HTTP server that receives Telegram updates.
// The bot library validates the secret token header on the webhook route.
// A health endpoint reports bot identity and database reachability.
func NewWebhookServer(b *bot.Bot, cfg *config.Config, store database.Store, logger *slog.Logger) *http.Server {
	log := logger.With("component", "webhook_server")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", b.WebhookHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status": "ok",
			"mode":   "webhook",
		}
		if cfg.Telegram.BotInfo != nil {
			status["bot_id"] = cfg.Telegram.BotInfo.ID
			status["bot_username"] = cfg.Telegram.BotInfo.Username
		}
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error("Failed to write health response", "error", err)
		}
	})

	return &http.Server{
		Addr:    cfg.Telegram.ListenAddr,
		Handler: mux,
	}
}
