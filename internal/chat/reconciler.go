package chat

import (
	"errors"

	"github.com/bhandras/parley/internal/metrics"
	"github.com/bhandras/parley/internal/protocol/wire"
	"github.com/bhandras/parley/pkg/logger"
)

// Reconciler is the decision engine for the inbound event stream.
//
// It owns no long-lived state itself: it classifies each event and applies
// the resulting delta to the externally owned components (message list,
// typing tracker, presence set, roster). It must always run on the session's
// dispatch goroutine.
type Reconciler struct {
	// self is the current user id, used to tell own echoes from peer messages.
	self string

	// selection reads the currently active conversation.
	selection func() Selection

	messages *MessageList
	typing   *TypingTracker
	presence *PresenceSet
	roster   *Roster

	// onForeignMessage fires for messages that do not belong to the active
	// conversation: the owner triggers the notification side effect and a
	// roster resync.
	onForeignMessage func(msg wire.Message)
}

// HandleRaw decodes one inbound frame and routes it. Malformed frames are
// dropped with a log line and a metric bump, never an error.
func (r *Reconciler) HandleRaw(data []byte) {
	evt, err := wire.ParseEvent(data)
	if err != nil {
		if errors.Is(err, wire.ErrMalformed) {
			metrics.MalformedEvents.Inc()
			logger.Warnf("reconciler: dropping event: %v", err)
			return
		}
		logger.Errorf("reconciler: unexpected decode failure: %v", err)
		return
	}
	r.Handle(evt)
}

// Handle routes a decoded event to the owning component.
func (r *Reconciler) Handle(evt wire.Event) {
	switch e := evt.(type) {
	case wire.OnlineUsersEvent:
		r.presence.ReplaceAll(e.Users)

	case wire.StatusEvent:
		if e.Online {
			r.presence.SetOnline(e.UserID)
		} else {
			r.presence.SetOffline(e.UserID, e.LastSeen)
			r.roster.SetLastSeen(e.UserID, e.LastSeen)
		}

	case wire.TypingEvent:
		r.handleTyping(e)

	case wire.MessageEvent:
		r.handleMessage(e.Message)
	}
}

// handleTyping applies a typing signal if it matches the active conversation.
// Signals for other conversations are discarded; no background typing state
// is kept for unselected conversations.
func (r *Reconciler) handleTyping(e wire.TypingEvent) {
	sel := r.selection()

	relevant := false
	switch sel.Kind {
	case KindPrivate:
		relevant = !e.IsGroup && e.SenderID == sel.ID
	case KindGroup:
		relevant = e.IsGroup && e.GroupID == sel.ID
	}
	if !relevant {
		logger.Tracef("reconciler: typing from %s ignored for %s conversation", e.SenderID, sel.Kind)
		return
	}

	r.typing.Mark(e.SenderID)
}

// handleMessage applies the message algorithm: relevance, dedup, side
// effects, and typing supersession.
func (r *Reconciler) handleMessage(msg wire.Message) {
	if r.isCurrent(msg) {
		if !r.messages.Append(msg) {
			metrics.DuplicateMessages.Inc()
			logger.Debugf("reconciler: duplicate message from %s suppressed", msg.SenderID)
		}
	} else if r.onForeignMessage != nil {
		r.onForeignMessage(msg)
	}

	// A delivered message supersedes any pending typing signal from the same
	// sender, regardless of which conversation it landed in.
	r.typing.Clear(msg.SenderID)
}

// isCurrent reports whether the message belongs to the active conversation.
func (r *Reconciler) isCurrent(msg wire.Message) bool {
	sel := r.selection()
	switch sel.Kind {
	case KindGroup:
		return msg.IsGroup && msg.GroupID == sel.ID
	case KindPrivate:
		if msg.IsGroup {
			return false
		}
		// Incoming from the selected peer, or our own echo to them.
		if msg.SenderID == sel.ID && msg.RecipientID == r.self {
			return true
		}
		if msg.SenderID == r.self && msg.RecipientID == sel.ID {
			return true
		}
	}
	return false
}
