package chat

import (
	"time"

	"github.com/bhandras/parley/internal/protocol/wire"
)

// MessageList holds the ordered message sequence of the active conversation.
//
// Insertion order is display order. The list is replaced wholesale on
// conversation switch and is not retained across switches.
type MessageList struct {
	dedupWindow time.Duration
	msgs        []wire.Message
}

// NewMessageList creates an empty list using the given dedup window.
func NewMessageList(dedupWindow time.Duration) *MessageList {
	return &MessageList{dedupWindow: dedupWindow}
}

// Append adds a message to the end of the list unless it duplicates an
// existing one. It returns false when the message was suppressed.
//
// A candidate is a duplicate when an existing message has the same sender
// and content and a timestamp within the dedup window. This reconciles the
// server's broadcast echo against an optimistically inserted local message.
func (l *MessageList) Append(msg wire.Message) bool {
	if l.isDuplicate(msg) {
		return false
	}
	l.msgs = append(l.msgs, msg)
	return true
}

// Add appends a message unconditionally, bypassing the duplicate check.
//
// Used for the local optimistic echo: a repeated identical send is a real
// message and must be displayed, while the server's broadcast of each send
// still reconciles through Append.
func (l *MessageList) Add(msg wire.Message) {
	l.msgs = append(l.msgs, msg)
}

func (l *MessageList) isDuplicate(msg wire.Message) bool {
	in, inOK := msg.Time()
	for _, existing := range l.msgs {
		if existing.SenderID != msg.SenderID || existing.Content != msg.Content {
			continue
		}
		ex, exOK := existing.Time()
		// Unparseable timestamps cannot land inside the window.
		if !inOK || !exOK {
			continue
		}
		delta := ex.Sub(in)
		if delta < 0 {
			delta = -delta
		}
		if delta < l.dedupWindow {
			return true
		}
	}
	return false
}

// Replace swaps in a full history, preserving the given order.
func (l *MessageList) Replace(msgs []wire.Message) {
	l.msgs = append(l.msgs[:0:0], msgs...)
}

// Clear empties the list.
func (l *MessageList) Clear() {
	l.msgs = nil
}

// Messages returns a copy of the current list.
func (l *MessageList) Messages() []wire.Message {
	out := make([]wire.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages held.
func (l *MessageList) Len() int {
	return len(l.msgs)
}
