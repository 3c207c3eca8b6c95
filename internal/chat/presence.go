package chat

import (
	"sort"
	"sync"
)

// PresenceSet maintains the set of currently online peers plus the last-seen
// timestamps recorded when peers go offline.
//
// A snapshot replaces the set wholesale; deltas are idempotent, so applying
// "online" or "offline" twice is a no-op.
type PresenceSet struct {
	mu       sync.Mutex
	online   map[string]struct{}
	lastSeen map[string]string
}

// NewPresenceSet creates an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]string),
	}
}

// ReplaceAll replaces the entire online set with the snapshot.
func (p *PresenceSet) ReplaceAll(users []string) {
	p.mu.Lock()
	p.online = make(map[string]struct{}, len(users))
	for _, u := range users {
		p.online[u] = struct{}{}
	}
	p.mu.Unlock()
}

// SetOnline marks a single peer online.
func (p *PresenceSet) SetOnline(userID string) {
	p.mu.Lock()
	p.online[userID] = struct{}{}
	p.mu.Unlock()
}

// SetOffline removes a peer from the online set and records its last-seen
// timestamp when the server supplied one.
func (p *PresenceSet) SetOffline(userID, lastSeen string) {
	p.mu.Lock()
	delete(p.online, userID)
	if lastSeen != "" {
		p.lastSeen[userID] = lastSeen
	}
	p.mu.Unlock()
}

// IsOnline reports whether the peer is currently online.
func (p *PresenceSet) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

// LastSeen returns the recorded last-seen timestamp for a peer.
func (p *PresenceSet) LastSeen(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.lastSeen[userID]
	return ts, ok
}

// Online returns the sorted online peer ids.
func (p *PresenceSet) Online() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.online))
	for u := range p.online {
		out = append(out, u)
	}
	p.mu.Unlock()
	sort.Strings(out)
	return out
}
