package chat

import (
	"sync"

	"github.com/bhandras/parley/internal/protocol/wire"
)

// Roster holds the per-peer and per-group conversation summaries shown in
// the sidebar: last message, last message time, unread counts.
//
// It is refreshed wholesale from the server; the only local mutations are
// the optimistic unread reset on selection and last-seen updates from
// presence deltas.
type Roster struct {
	mu     sync.Mutex
	users  []wire.User
	groups []wire.Group
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{}
}

// Update replaces the roster contents with a fresh server snapshot.
func (r *Roster) Update(users []wire.User, groups []wire.Group) {
	r.mu.Lock()
	r.users = append(r.users[:0:0], users...)
	r.groups = append(r.groups[:0:0], groups...)
	r.mu.Unlock()
}

// Users returns a copy of the user summaries.
func (r *Roster) Users() []wire.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.User, len(r.users))
	copy(out, r.users)
	return out
}

// Groups returns a copy of the group summaries.
func (r *Roster) Groups() []wire.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// ZeroUnread optimistically resets the unread counter for a conversation.
func (r *Roster) ZeroUnread(id string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case KindPrivate:
		for i := range r.users {
			if r.users[i].ID == id {
				r.users[i].UnreadCount = 0
			}
		}
	case KindGroup:
		for i := range r.groups {
			if r.groups[i].ID == id {
				r.groups[i].UnreadCount = 0
			}
		}
	}
}

// SetLastSeen updates a user's last-seen timestamp from a presence delta.
func (r *Roster) SetLastSeen(userID, lastSeen string) {
	if lastSeen == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			r.users[i].LastSeen = lastSeen
		}
	}
}

// HasGroup reports whether a group is still present in the roster.
func (r *Roster) HasGroup(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.groups {
		if r.groups[i].ID == groupID {
			return true
		}
	}
	return false
}

// GroupMembers returns the member ids of a group.
func (r *Roster) GroupMembers(groupID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.groups {
		if r.groups[i].ID == groupID {
			members := make([]string, len(r.groups[i].Members))
			copy(members, r.groups[i].Members)
			return members, true
		}
	}
	return nil, false
}

// UserName resolves a user id to a display name.
func (r *Roster) UserName(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			return r.users[i].Name, true
		}
	}
	return "", false
}
