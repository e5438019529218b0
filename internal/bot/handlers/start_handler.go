package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler creates the /start command handler.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil {
			return
		}

		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   deps.Config.Messages.Welcome,
		}); err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to send welcome message",
				"chat_id", msg.Chat.ID, "error", err)
		}
	}
}
