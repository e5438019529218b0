// Package loopdetect implements in-memory protection against the bot
// replying to its own messages through the Telegram Business relay.
//
// A business connection proxies both directions of the owner's chats, so a
// reply the bot just sent can come back as a fresh inbound event. Left
// unchecked that produces an unbounded reply cycle. The detector classifies
// inbound text with three checks, cheapest and most certain first: known bot
// phrasing, implausibly fast arrival, and a fingerprint match against
// recently observed messages.
//
// State is deliberately process-local: echoes cannot originate from a prior
// process incarnation, so a clean slate on restart is acceptable. The
// signature check covers the restart gap since it needs no state.
package loopdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Default tuning values, used when the corresponding Config field is zero.
const (
	DefaultMinMessageInterval = 2 * time.Second
	DefaultDuplicateWindow    = 5 * time.Minute
	DefaultMaxTrackedMessages = 50
)

// Reason explains why a message was classified as ignorable.
type Reason string

const (
	ReasonBotSignature     Reason = "bot_signature"
	ReasonRapidMessage     Reason = "rapid_message"
	ReasonDuplicateMessage Reason = "duplicate_message"
)

// Verdict is the result of classifying one inbound message.
type Verdict struct {
	Ignore bool
	Reason Reason
}

var proceed = Verdict{}

// Config holds detector tuning knobs and the phrase tables for signature
// matching.
type Config struct {
	// MinMessageInterval is the minimum allowed gap between two messages in
	// the same chat; anything faster is flagged as rapid_message.
	MinMessageInterval time.Duration

	// DuplicateWindow is how long an observed fingerprint stays live for
	// duplicate detection.
	DuplicateWindow time.Duration

	// MaxTrackedMessages bounds the per-chat fingerprint history; the oldest
	// entry is evicted on overflow.
	MaxTrackedMessages int

	// Signatures are phrase fragments matched case-insensitively anywhere in
	// the text. Greetings are matched case-insensitively as prefixes only.
	Signatures []string
	Greetings  []string
}

type entry struct {
	at   time.Time
	hash string
}

// Detector classifies inbound messages against recent history, timing, and
// known bot phrasing. All methods are safe for concurrent use; a single
// mutex funnels every mutation so the per-chat history and the global
// fingerprint set can never disagree.
type Detector struct {
	minInterval time.Duration
	window      time.Duration
	maxTracked  int
	signatures  []string
	greetings   []string

	log *slog.Logger

	mu       sync.Mutex
	history  map[int64][]entry
	lastSeen map[int64]time.Time
	// live holds a refcount per fingerprint, mirroring the union of all
	// per-chat histories. Counted rather than a plain set: RecordOutgoing
	// may insert a fingerprint that is already live, and evicting one copy
	// must not kill membership for the other.
	live map[string]int

	now func() time.Time
}

// New creates a detector from cfg, applying defaults for zero-valued knobs.
func New(cfg Config, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinMessageInterval <= 0 {
		cfg.MinMessageInterval = DefaultMinMessageInterval
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.MaxTrackedMessages <= 0 {
		cfg.MaxTrackedMessages = DefaultMaxTrackedMessages
	}

	return &Detector{
		minInterval: cfg.MinMessageInterval,
		window:      cfg.DuplicateWindow,
		maxTracked:  cfg.MaxTrackedMessages,
		signatures:  lowercaseAll(cfg.Signatures),
		greetings:   lowercaseAll(cfg.Greetings),
		log:         log.With("component", "loop_detector"),
		history:     make(map[int64][]entry),
		lastSeen:    make(map[int64]time.Time),
		live:        make(map[string]int),
		now:         time.Now,
	}
}

// Classify decides whether an inbound message should be processed. Checks
// run in a fixed order: business-path bypass, signature match, rapid-fire,
// duplicate. The rapid check updates the chat's last-seen time whether or
// not it fires, and the duplicate check records the fingerprint when it
// passes, so calling Classify more than once per message would double those
// side effects.
func (d *Detector) Classify(text string, chatID, senderID int64, fromBusiness bool) Verdict {
	// Only the business relay path can echo the bot's own traffic back.
	if !fromBusiness {
		return proceed
	}

	if d.matchesSignature(text) {
		d.log.Warn("Loop detected: message matches bot phrasing",
			"chat_id", chatID, "sender_id", senderID)
		return Verdict{Ignore: true, Reason: ReasonBotSignature}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Expire stale fingerprints first so the duplicate check below only sees
	// entries inside the window.
	d.sweep()

	if d.isRapid(chatID) {
		d.log.Warn("Loop detected: message arrived too fast",
			"chat_id", chatID, "sender_id", senderID, "min_interval", d.minInterval)
		return Verdict{Ignore: true, Reason: ReasonRapidMessage}
	}

	hash := fingerprint(text, chatID)
	if _, dup := d.live[hash]; dup {
		d.log.Warn("Loop detected: duplicate message",
			"chat_id", chatID, "sender_id", senderID)
		return Verdict{Ignore: true, Reason: ReasonDuplicateMessage}
	}

	d.insert(chatID, hash)
	return proceed
}

// RecordOutgoing remembers the bot's own just-sent reply so that, if the
// relay echoes it back as a new inbound event, the duplicate check catches
// it. Signature and rapid checks are intentionally not involved.
func (d *Detector) RecordOutgoing(text string, chatID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.insert(chatID, fingerprint(text, chatID))
	d.log.Debug("Recorded outgoing reply", "chat_id", chatID)
}

// Sweep drops expired fingerprints from every chat's history, mirroring
// removals into the global set. Classify sweeps passively on each insert;
// this export lets a scheduled task keep idle chats from pinning memory.
func (d *Detector) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep()
}

// Stats describes the detector's current state.
type Stats struct {
	TrackedChats       int
	TrackedMessages    int
	LiveFingerprints   int
	MinMessageInterval time.Duration
	DuplicateWindow    time.Duration
}

// Stats returns a snapshot of the detector state.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for _, h := range d.history {
		total += len(h)
	}
	return Stats{
		TrackedChats:       len(d.history),
		TrackedMessages:    total,
		LiveFingerprints:   len(d.live),
		MinMessageInterval: d.minInterval,
		DuplicateWindow:    d.window,
	}
}

// matchesSignature reports whether text looks like one of the bot's own
// messages: a known phrase fragment anywhere, or a known greeting opener.
func (d *Detector) matchesSignature(text string) bool {
	lower := strings.ToLower(text)

	for _, sig := range d.signatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	for _, greeting := range d.greetings {
		if strings.HasPrefix(lower, greeting) {
			return true
		}
	}
	return false
}

// isRapid checks the gap since the chat's previous message and always
// refreshes the last-seen time, so elapsed tracking self-corrects each call.
// A chat with no history passes. Caller must hold d.mu.
func (d *Detector) isRapid(chatID int64) bool {
	now := d.now()
	last, seen := d.lastSeen[chatID]
	d.lastSeen[chatID] = now

	return seen && now.Sub(last) < d.minInterval
}

// insert appends a fingerprint to the chat's bounded history and bumps its
// refcount in the global set, evicting the oldest entry on overflow.
// Caller must hold d.mu.
func (d *Detector) insert(chatID int64, hash string) {
	h := d.history[chatID]
	if len(h) >= d.maxTracked {
		d.release(h[0].hash)
		h = h[1:]
	}
	d.history[chatID] = append(h, entry{at: d.now(), hash: hash})
	d.live[hash]++
}

// sweep removes entries older than the duplicate window from the front of
// every chat's history, keeping the global set in lockstep. Caller must
// hold d.mu.
func (d *Detector) sweep() {
	cutoff := d.now().Add(-d.window)

	for chatID, h := range d.history {
		i := 0
		for i < len(h) && h[i].at.Before(cutoff) {
			d.release(h[i].hash)
			i++
		}
		switch {
		case i == len(h):
			delete(d.history, chatID)
		case i > 0:
			d.history[chatID] = h[i:]
		}
	}
}

// release decrements a fingerprint's refcount, dropping it from the live
// set when no history entry holds it anymore. Caller must hold d.mu.
func (d *Detector) release(hash string) {
	if n := d.live[hash]; n <= 1 {
		delete(d.live, hash)
	} else {
		d.live[hash] = n - 1
	}
}

// fingerprint hashes normalized message content scoped to a chat. Case is
// folded and whitespace collapsed so trivially reformatted echoes still
// match.
func fingerprint(text string, chatID int64) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", chatID, normalized)))
	return hex.EncodeToString(sum[:])
}

func lowercaseAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
