// Package chat implements the realtime message and session reconciliation
// core: it consumes the ordered server event stream and reconciles it
// against the locally held conversation state.
package chat

// Kind discriminates conversation targets.
type Kind int

const (
	// KindNone means no conversation is selected.
	KindNone Kind = iota
	// KindPrivate is a one-to-one conversation with a user.
	KindPrivate
	// KindGroup is a group conversation.
	KindGroup
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindGroup:
		return "group"
	default:
		return "none"
	}
}

// Selection identifies the currently active conversation. Exactly one
// selection is active at a time; it changes only on explicit user selection
// or when a selected group is deleted.
type Selection struct {
	// Kind is the conversation flavor; KindNone when nothing is selected.
	Kind Kind
	// ID is the peer id for private conversations, the group id for groups,
	// and empty for KindNone.
	ID string
}

// NoSelection returns the empty selection.
func NoSelection() Selection {
	return Selection{}
}

// PrivateSelection selects the conversation with the given user.
func PrivateSelection(peerID string) Selection {
	return Selection{Kind: KindPrivate, ID: peerID}
}

// GroupSelection selects the given group conversation.
func GroupSelection(groupID string) Selection {
	return Selection{Kind: KindGroup, ID: groupID}
}

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool {
	return s.Kind == KindNone
}
