// Package wire defines the JSON types exchanged with the chat server, both
// over the websocket event stream and the REST API.
package wire

import "time"

// timeLayouts are the timestamp formats accepted from the server.
//
// The server emits ISO-8601 without a zone designator for some fields, so a
// plain RFC 3339 parse is not enough.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses a server or client supplied ISO-8601 timestamp.
func ParseTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Message is a single chat message, private or group.
//
// Messages are immutable once created. A client-originated message carries a
// locally assigned ID until the server echo reconciles it.
type Message struct {
	// ID is the server-assigned message id; empty for optimistic local echoes
	// until reconciled (local echoes carry a client-generated id instead).
	ID string `json:"_id,omitempty"`
	// SenderID identifies the message author.
	SenderID string `json:"sender_id"`
	// RecipientID is the destination user for private messages. For group
	// messages the server stores the group id here.
	RecipientID string `json:"recipient_id,omitempty"`
	// GroupID is set for group messages.
	GroupID string `json:"group_id,omitempty"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is the ISO-8601 creation time, server or client assigned.
	Timestamp string `json:"timestamp"`
	// IsGroup discriminates group from private messages.
	IsGroup bool `json:"is_group"`
}

// Time parses the message timestamp. The second return is false when the
// timestamp is absent or unparseable.
func (m Message) Time() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	return ParseTime(m.Timestamp)
}

// User is a chat peer together with its roster summary fields.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	// LastMessage is the text of the most recent message in the conversation
	// with this user.
	LastMessage string `json:"last_message,omitempty"`
	// LastMessageTime is the ISO-8601 time of that message.
	LastMessageTime string `json:"last_message_time,omitempty"`
	// UnreadCount is the number of unread messages from this user.
	UnreadCount int `json:"unread_count,omitempty"`
	// LastSeen is the ISO-8601 time the user was last online.
	LastSeen string `json:"last_seen,omitempty"`
}

// Group is a group conversation together with its roster summary fields.
type Group struct {
	ID        string   `json:"_id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"created_by"`
	CreatedAt string   `json:"created_at"`

	LastMessage     string `json:"last_message,omitempty"`
	LastMessageTime string `json:"last_message_time,omitempty"`
	UnreadCount     int    `json:"unread_count,omitempty"`
}
