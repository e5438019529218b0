package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const statsQueryTimeout = 10 * time.Second

// NewStatsHandler creates the admin /stats command handler, reporting the
// state of the ownership registry and the loop detector.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil {
			return
		}
		log := deps.Logger.With("handler", "stats", "chat_id", msg.Chat.ID)

		queryCtx, cancel := context.WithTimeout(ctx, statsQueryTimeout)
		defer cancel()

		var sb strings.Builder

		connStats, err := deps.Store.ConnectionStats(queryCtx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to read connection stats", "error", err)
			sb.WriteString("Business connections: unavailable\n")
		} else {
			lastUpdate := "never"
			if connStats.LastUpdate.Valid {
				lastUpdate = connStats.LastUpdate.Time.Format(time.RFC3339)
			}
			fmt.Fprintf(&sb, "Business connections:\n  active: %d\n  total: %d\n  last update: %s\n  storage: %d bytes\n",
				connStats.ActiveConnections, connStats.TotalConnections, lastUpdate, connStats.StorageSizeBytes)
		}

		detStats := deps.Detector.Stats()
		fmt.Fprintf(&sb, "\nLoop detector:\n  tracked chats: %d\n  tracked messages: %d\n  live fingerprints: %d\n  min interval: %s\n  duplicate window: %s\n",
			detStats.TrackedChats, detStats.TrackedMessages, detStats.LiveFingerprints,
			detStats.MinMessageInterval, detStats.DuplicateWindow)

		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   sb.String(),
		}); err != nil {
			log.ErrorContext(ctx, "Failed to send stats message", "error", err)
		}
	}
}
