package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/router"
)

const (
	aiRequestTimeout   = 2 * time.Minute
	sendMessageTimeout = 10 * time.Second
	dbWriteTimeout     = 5 * time.Second
)

type dispatcher struct {
	deps HandlerDeps
}

// NewDispatcher creates the default handler that receives every update not
// claimed by a registered command handler: business connection lifecycle
// events, business messages relayed from the owner's chats, and plain
// direct messages to the bot.
func NewDispatcher(deps HandlerDeps) bot.HandlerFunc {
	return dispatcher{deps}.Handle
}

func (d dispatcher) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.BusinessConnection != nil:
		d.handleConnection(ctx, update.BusinessConnection)
	case update.BusinessMessage != nil:
		d.handleBusinessMessage(ctx, b, update.BusinessMessage)
	case update.Message != nil:
		d.handleDirectMessage(ctx, b, update.Message)
	case update.EditedBusinessMessage != nil:
		// Edits are never auto-replied to; the original inbound message
		// already went through routing.
		d.deps.Logger.DebugContext(ctx, "Ignoring edited business message",
			"chat_id", update.EditedBusinessMessage.Chat.ID)
	case update.DeletedBusinessMessages != nil:
		d.deps.Logger.DebugContext(ctx, "Ignoring deleted business messages notification",
			"chat_id", update.DeletedBusinessMessages.Chat.ID,
			"count", len(update.DeletedBusinessMessages.MessageIDs))
	default:
		d.deps.Logger.DebugContext(ctx, "Ignoring unsupported update type", "update_id", update.ID)
	}
}

// handleConnection maintains the ownership registry from connection
// lifecycle events: establishment and metadata refreshes upsert the record,
// revocation soft-deletes it.
func (d dispatcher) handleConnection(ctx context.Context, conn *models.BusinessConnection) {
	log := d.deps.Logger.With("handler", "business_connection",
		"connection_id", conn.ID, "owner_id", conn.User.ID)

	writeCtx, cancel := context.WithTimeout(ctx, dbWriteTimeout)
	defer cancel()

	if !conn.IsEnabled {
		if err := d.deps.Store.DeactivateConnection(writeCtx, conn.ID); err != nil {
			log.ErrorContext(ctx, "Failed to deactivate business connection", "error", err)
			return
		}
		log.InfoContext(ctx, "Business connection revoked")
		return
	}

	record := &database.BusinessConnection{
		ConnectionID:  conn.ID,
		OwnerUserID:   conn.User.ID,
		OwnerName:     conn.User.FirstName,
		OwnerUsername: conn.User.Username,
		IsActive:      true,
	}
	if err := d.deps.Store.UpsertConnection(writeCtx, record); err != nil {
		log.ErrorContext(ctx, "Failed to save business connection", "error", err)
		return
	}
	log.InfoContext(ctx, "Business connection established", "owner_name", conn.User.FirstName)
}

// handleBusinessMessage routes a message relayed through a business
// connection and, for customer messages, generates and sends a reply.
func (d dispatcher) handleBusinessMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := d.deps.Logger.With("handler", "business_message", "chat_id", msg.Chat.ID)

	if msg.From == nil || msg.Text == "" {
		log.DebugContext(ctx, "Skipping business message without sender or text")
		return
	}

	connID := msg.BusinessConnectionID
	if connID == "" {
		// The Business API should always tag relayed messages. Routing still
		// works (the empty id downgrades to non-business semantics) but this
		// is worth noticing in logs.
		log.WarnContext(ctx, "Business message without connection_id", "user_id", msg.From.ID)
	}

	result := d.deps.Router.Route(ctx, router.Inbound{
		ConnectionID: connID,
		SenderID:     msg.From.ID,
		ChatID:       msg.Chat.ID,
		Text:         msg.Text,
		FromBusiness: true,
	})

	switch result.Decision {
	case router.DecisionOwnerSpeaking:
		log.InfoContext(ctx, "Owner message observed, no reply sent", "user_id", msg.From.ID)
		return
	case router.DecisionIgnore:
		log.InfoContext(ctx, "Business message ignored", "reason", result.Reason)
		return
	}

	d.sendTyping(ctx, b, msg.Chat.ID, connID)

	sessionID := fmt.Sprintf("business_%d", msg.From.ID)
	reply := d.generateReply(ctx, msg.Text, sessionID, msg.From.FirstName)

	d.sendReply(ctx, b, msg.Chat.ID, connID, reply, log)
}

// handleDirectMessage replies to messages sent straight to the bot. The
// business-relay loop checks do not apply here: only the relay path can echo
// the bot's own traffic back.
func (d dispatcher) handleDirectMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := d.deps.Logger.With("handler", "direct_message", "chat_id", msg.Chat.ID)

	if msg.From == nil {
		return
	}
	if msg.Text == "" {
		log.DebugContext(ctx, "Skipping non-text direct message", "user_id", msg.From.ID)
		return
	}

	result := d.deps.Router.Route(ctx, router.Inbound{
		SenderID:     msg.From.ID,
		ChatID:       msg.Chat.ID,
		Text:         msg.Text,
		FromBusiness: false,
	})
	if result.Decision != router.DecisionCustomerMessage {
		log.InfoContext(ctx, "Direct message not processed", "decision", result.Decision.String())
		return
	}

	d.sendTyping(ctx, b, msg.Chat.ID, "")

	sessionID := fmt.Sprintf("user_%d", msg.From.ID)
	reply := d.generateReply(ctx, msg.Text, sessionID, msg.From.FirstName)

	d.sendReply(ctx, b, msg.Chat.ID, "", reply, log)
}

// generateReply asks the AI for a reply, falling back to a static message
// when generation fails. AI failures must never leave a customer without an
// answer.
func (d dispatcher) generateReply(ctx context.Context, text, sessionID, displayName string) string {
	aiCtx, cancel := context.WithTimeout(ctx, aiRequestTimeout)
	defer cancel()

	reply, err := d.deps.GeminiClient.GenerateReply(aiCtx, text, sessionID, displayName)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "AI reply generation failed, using fallback",
			"session_id", sessionID, "error", err)
		return d.deps.Config.Messages.GeneralError
	}
	return reply
}

// sendReply delivers the reply, preferring the business channel when a
// connection id is present and falling back to a standard send if the
// business send fails. On success the reply is recorded with the loop
// detector so an echoed copy is recognized as a duplicate.
func (d dispatcher) sendReply(ctx context.Context, b *bot.Bot, chatID int64, connID, text string, log *slog.Logger) {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	var err error
	if connID != "" {
		_, err = b.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:               chatID,
			Text:                 text,
			BusinessConnectionID: connID,
		})
		if err != nil {
			log.WarnContext(ctx, "Business send failed, falling back to standard send",
				"connection_id", connID, "error", err)
			_, err = b.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		}
	} else {
		_, err = b.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	}

	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
		return
	}

	d.deps.Router.RecordOutgoing(text, chatID)
	log.InfoContext(ctx, "Reply sent", "via_business", connID != "")
}

func (d dispatcher) sendTyping(ctx context.Context, b *bot.Bot, chatID int64, connID string) {
	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID:               chatID,
		Action:               models.ChatActionTyping,
		BusinessConnectionID: connID,
	}); err != nil {
		d.deps.Logger.DebugContext(ctx, "Failed to send typing action",
			"chat_id", chatID, "error", err)
	}
}
