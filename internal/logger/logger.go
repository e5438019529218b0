// Package logger provides structured logging via Go's slog package with
// configurable level and format, plus a Telegram update-logging middleware.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs are formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Middleware creates a logging middleware for the Telegram bot. It logs every
// inbound update with its type and, for message-carrying updates, the chat,
// sender and a short text preview.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			logEntry := log.With("update_id", update.ID)

			var updateType string
			switch {
			case update.Message != nil:
				updateType = "message"
				logEntry = withMessageAttrs(logEntry, update.Message)
			case update.BusinessMessage != nil:
				updateType = "business_message"
				logEntry = withMessageAttrs(logEntry, update.BusinessMessage).With(
					"connection_id", update.BusinessMessage.BusinessConnectionID,
				)
			case update.EditedBusinessMessage != nil:
				updateType = "edited_business_message"
				logEntry = withMessageAttrs(logEntry, update.EditedBusinessMessage)
			case update.BusinessConnection != nil:
				updateType = "business_connection"
				logEntry = logEntry.With(
					"connection_id", update.BusinessConnection.ID,
					"owner_id", update.BusinessConnection.User.ID,
					"is_enabled", update.BusinessConnection.IsEnabled,
				)
			case update.DeletedBusinessMessages != nil:
				updateType = "deleted_business_messages"
				logEntry = logEntry.With(
					"connection_id", update.DeletedBusinessMessages.BusinessConnectionID,
					"chat_id", update.DeletedBusinessMessages.Chat.ID,
					"count", len(update.DeletedBusinessMessages.MessageIDs),
				)
			default:
				updateType = "other"
			}
			logEntry = logEntry.With("update_type", updateType)

			logEntry.InfoContext(ctx, "Processing update")

			next(ctx, b, update)

			logEntry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func withMessageAttrs(log *slog.Logger, msg *models.Message) *slog.Logger {
	log = log.With("message_id", msg.ID, "chat_id", msg.Chat.ID,
		"text_preview", truncateString(msg.Text, 50))
	if msg.From != nil {
		log = log.With("user_id", msg.From.ID)
	}
	return log
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
