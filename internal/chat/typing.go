package chat

import (
	"sort"
	"sync"
	"time"
)

// TypingTracker tracks which peers are currently composing a message.
//
// Each typing peer owns one cancellable expiry timer; a fresh signal restarts
// the window (last signal wins, timers never stack) and a delivered message
// from the peer clears the entry immediately. Expiry callbacks carry a
// supersede check so a timer that lost the race against a newer signal never
// clears fresh state.
type TypingTracker struct {
	expiry time.Duration

	// onExpire, when set, is invoked after a timer-driven clear so the owner
	// can react (e.g. schedule a re-render). The state change itself has
	// already been applied.
	onExpire func(peerID string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTypingTracker creates a tracker with the given expiry window.
func NewTypingTracker(expiry time.Duration, onExpire func(peerID string)) *TypingTracker {
	return &TypingTracker{
		expiry:   expiry,
		onExpire: onExpire,
		timers:   make(map[string]*time.Timer),
	}
}

// Mark sets the peer as typing and restarts its expiry timer.
func (t *TypingTracker) Mark(peerID string) {
	t.mu.Lock()
	if prev, ok := t.timers[peerID]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.expiry, func() {
		t.expire(peerID, timer)
	})
	t.timers[peerID] = timer
	t.mu.Unlock()
}

// expire clears the peer if its timer is still the current one.
func (t *TypingTracker) expire(peerID string, timer *time.Timer) {
	t.mu.Lock()
	current, ok := t.timers[peerID]
	if !ok || current != timer {
		// Superseded by a newer signal or an explicit clear.
		t.mu.Unlock()
		return
	}
	delete(t.timers, peerID)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(peerID)
	}
}

// Clear removes the peer from the typing set and cancels its pending timer.
func (t *TypingTracker) Clear(peerID string) {
	t.mu.Lock()
	if timer, ok := t.timers[peerID]; ok {
		timer.Stop()
		delete(t.timers, peerID)
	}
	t.mu.Unlock()
}

// IsTyping reports whether the peer is currently typing.
func (t *TypingTracker) IsTyping(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[peerID]
	return ok
}

// Typers returns the sorted set of currently typing peers.
func (t *TypingTracker) Typers() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.timers))
	for peer := range t.timers {
		out = append(out, peer)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// StopAll cancels every pending timer and empties the typing set.
func (t *TypingTracker) StopAll() {
	t.mu.Lock()
	for peer, timer := range t.timers {
		timer.Stop()
		delete(t.timers, peer)
	}
	t.mu.Unlock()
}
