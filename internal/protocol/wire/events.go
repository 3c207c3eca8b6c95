package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks an inbound event that is missing required fields or
// cannot be decoded. Malformed events are dropped by the caller, never fatal.
var ErrMalformed = errors.New("malformed event")

// Event is a decoded inbound server event.
//
// The event stream is server-trusted but not schema-validated upstream, so
// decoding never assumes field presence; anything incomplete fails with
// ErrMalformed instead of producing a partial event.
type Event interface {
	isEvent()
}

// OnlineUsersEvent is a full snapshot of the online peer set.
type OnlineUsersEvent struct {
	// Users is the complete set of currently online user ids.
	Users []string
}

func (OnlineUsersEvent) isEvent() {}

// StatusEvent is a presence delta for a single peer.
type StatusEvent struct {
	// UserID is the peer whose presence changed.
	UserID string
	// Online is true for an "online" delta, false for "offline".
	Online bool
	// LastSeen is the ISO-8601 last-seen time, set on offline deltas.
	LastSeen string
}

func (StatusEvent) isEvent() {}

// TypingEvent signals that a peer is composing a message.
type TypingEvent struct {
	// SenderID is the typing peer.
	SenderID string
	// IsGroup is true when the signal belongs to a group conversation.
	IsGroup bool
	// GroupID is the group the signal belongs to, when IsGroup is set.
	GroupID string
}

func (TypingEvent) isEvent() {}

// MessageEvent delivers a chat message.
type MessageEvent struct {
	Message Message
}

func (MessageEvent) isEvent() {}

// envelope is the discriminant wrapper every inbound event decodes through.
type envelope struct {
	Type string `json:"type"`
}

// ParseEvent decodes one inbound websocket frame into a typed event.
//
// A frame without a `type` field decodes as a message, matching the server's
// legacy framing.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "online_users":
		var raw struct {
			Users *[]string `json:"users"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.Users == nil {
			return nil, fmt.Errorf("%w: online_users without users field", ErrMalformed)
		}
		return OnlineUsersEvent{Users: *raw.Users}, nil

	case "status":
		var raw struct {
			UserID   string `json:"user_id"`
			Status   string `json:"status"`
			LastSeen string `json:"last_seen"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.UserID == "" {
			return nil, fmt.Errorf("%w: status without user_id", ErrMalformed)
		}
		switch raw.Status {
		case "online", "offline":
		default:
			return nil, fmt.Errorf("%w: status %q", ErrMalformed, raw.Status)
		}
		return StatusEvent{
			UserID:   raw.UserID,
			Online:   raw.Status == "online",
			LastSeen: raw.LastSeen,
		}, nil

	case "typing":
		var raw struct {
			SenderID string `json:"sender_id"`
			IsGroup  bool   `json:"is_group"`
			GroupID  string `json:"group_id"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.SenderID == "" {
			return nil, fmt.Errorf("%w: typing without sender_id", ErrMalformed)
		}
		if raw.IsGroup && raw.GroupID == "" {
			return nil, fmt.Errorf("%w: group typing without group_id", ErrMalformed)
		}
		return TypingEvent{
			SenderID: raw.SenderID,
			IsGroup:  raw.IsGroup,
			GroupID:  raw.GroupID,
		}, nil

	case "message", "":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if msg.SenderID == "" {
			return nil, fmt.Errorf("%w: message without sender_id", ErrMalformed)
		}
		if msg.Content == "" {
			return nil, fmt.Errorf("%w: message without content", ErrMalformed)
		}
		return MessageEvent{Message: msg}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

// OutboundMessage is the shape sent to the server for a user message.
//
// RecipientID doubles as the group id when IsGroup is set.
type OutboundMessage struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	RecipientID string `json:"recipient_id"`
	IsGroup     bool   `json:"is_group"`
}

// NewOutboundMessage builds an outbound message frame.
func NewOutboundMessage(content, recipientID string, isGroup bool) OutboundMessage {
	return OutboundMessage{
		Type:        "message",
		Content:     content,
		RecipientID: recipientID,
		IsGroup:     isGroup,
	}
}

// OutboundTyping is the shape sent to the server for a typing signal.
type OutboundTyping struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
	IsGroup     bool   `json:"is_group"`
}

// NewOutboundTyping builds an outbound typing frame.
func NewOutboundTyping(recipientID string, isGroup bool) OutboundTyping {
	return OutboundTyping{
		Type:        "typing",
		RecipientID: recipientID,
		IsGroup:     isGroup,
	}
}
