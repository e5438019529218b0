package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly restricts a handler to the configured admin user. Unauthorized
// callers get a short denial message.
func AdminOnly(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			msg := update.Message
			if msg == nil || msg.From == nil {
				return
			}

			if msg.From.ID != deps.Config.Telegram.AdminID {
				deps.Logger.WarnContext(ctx, "Unauthorized admin command",
					"user_id", msg.From.ID, "chat_id", msg.Chat.ID, "text", msg.Text)
				if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: msg.Chat.ID,
					Text:   deps.Config.Messages.NotAuthorized,
				}); err != nil {
					deps.Logger.ErrorContext(ctx, "Failed to send denial message", "error", err)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}
