// Package router combines the ownership registry and the loop detector into
// a single routing decision per inbound event.
package router

import (
	"context"
	"log/slog"

	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/loopdetect"
)

// Decision is the outcome of routing one inbound message.
type Decision int

const (
	// DecisionIgnore means the message must be discarded; Result.Reason says why.
	DecisionIgnore Decision = iota
	// DecisionOwnerSpeaking means the account owner sent the message through
	// the relay: no auto-reply, log only.
	DecisionOwnerSpeaking
	// DecisionCustomerMessage means a genuine customer message: generate and
	// send a reply, then call RecordOutgoing with the reply text.
	DecisionCustomerMessage
)

// String implements fmt.Stringer for logging.
func (d Decision) String() string {
	switch d {
	case DecisionIgnore:
		return "ignore"
	case DecisionOwnerSpeaking:
		return "owner_speaking"
	case DecisionCustomerMessage:
		return "customer_message"
	default:
		return "unknown"
	}
}

// Result carries the decision and, for ignores, the detector's reason.
type Result struct {
	Decision Decision
	Reason   loopdetect.Reason
}

// Inbound is the dispatcher-extracted shape of one incoming message event.
// An empty ConnectionID implies FromBusiness=false semantics; the dispatcher
// is responsible for logging that as anomalous.
type Inbound struct {
	ConnectionID string
	SenderID     int64
	ChatID       int64
	Text         string
	FromBusiness bool
}

// Router decides, per inbound event, whether the account owner is speaking,
// whether the event is an echo/duplicate to discard, or whether it is a
// genuine customer message that warrants an automated reply.
type Router struct {
	store    database.Store
	detector *loopdetect.Detector
	log      *slog.Logger
}

// New creates a Router over the given registry and detector.
func New(store database.Store, detector *loopdetect.Detector, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:    store,
		detector: detector,
		log:      log.With("component", "router"),
	}
}

// Route classifies one inbound message.
//
// Ownership is checked before loop detection on purpose: an owner's own
// outgoing message observed via the relay must never be auto-replied to,
// no matter how much it resembles bot phrasing, while loop detection exists
// to catch the bot's own prior output — a different failure mode.
func (r *Router) Route(ctx context.Context, in Inbound) Result {
	fromBusiness := in.FromBusiness && in.ConnectionID != ""

	if fromBusiness && r.store.IsOwner(ctx, in.ConnectionID, in.SenderID) {
		r.log.InfoContext(ctx, "Owner is speaking, suppressing auto-reply",
			"connection_id", in.ConnectionID, "sender_id", in.SenderID, "chat_id", in.ChatID)
		return Result{Decision: DecisionOwnerSpeaking}
	}

	verdict := r.detector.Classify(in.Text, in.ChatID, in.SenderID, fromBusiness)
	if verdict.Ignore {
		r.log.InfoContext(ctx, "Message ignored by loop detector",
			"reason", verdict.Reason, "chat_id", in.ChatID, "sender_id", in.SenderID)
		return Result{Decision: DecisionIgnore, Reason: verdict.Reason}
	}

	return Result{Decision: DecisionCustomerMessage}
}

// RecordOutgoing feeds the bot's just-sent reply into the loop detector so
// it is recognized if the relay echoes it back.
func (r *Router) RecordOutgoing(text string, chatID int64) {
	r.detector.RecordOutgoing(text, chatID)
}
