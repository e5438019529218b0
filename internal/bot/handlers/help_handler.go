package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewHelpHandler creates the /help command handler.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil {
			return
		}

		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   deps.Config.Messages.Help,
		}); err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to send help message",
				"chat_id", msg.Chat.ID, "error", err)
		}
	}
}
