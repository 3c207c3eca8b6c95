package chat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingTrackerExpires(t *testing.T) {
	tr := NewTypingTracker(30*time.Millisecond, nil)
	defer tr.StopAll()

	tr.Mark("u2")
	require.True(t, tr.IsTyping("u2"))

	require.Eventually(t, func() bool {
		return !tr.IsTyping("u2")
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTrackerRemarkRestartsWindow(t *testing.T) {
	tr := NewTypingTracker(60*time.Millisecond, nil)
	defer tr.StopAll()

	tr.Mark("u2")
	time.Sleep(40 * time.Millisecond)
	tr.Mark("u2")
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first signal, but only 40ms after the second: the
	// fresh signal won and the entry is still alive.
	require.True(t, tr.IsTyping("u2"))

	require.Eventually(t, func() bool {
		return !tr.IsTyping("u2")
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTrackerClearCancelsTimer(t *testing.T) {
	var expirations atomic.Int32
	tr := NewTypingTracker(30*time.Millisecond, func(string) {
		expirations.Add(1)
	})
	defer tr.StopAll()

	tr.Mark("u2")
	tr.Clear("u2")
	require.False(t, tr.IsTyping("u2"))

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, expirations.Load(), "cancelled timer must not fire the expiry hook")
}

func TestTypingTrackerIndependentPeers(t *testing.T) {
	tr := NewTypingTracker(time.Hour, nil)
	defer tr.StopAll()

	tr.Mark("u2")
	tr.Mark("u3")
	require.Equal(t, []string{"u2", "u3"}, tr.Typers())

	tr.Clear("u2")
	require.Equal(t, []string{"u3"}, tr.Typers())
	require.True(t, tr.IsTyping("u3"))
}

func TestTypingTrackerStopAll(t *testing.T) {
	tr := NewTypingTracker(time.Hour, nil)
	tr.Mark("u2")
	tr.Mark("u3")

	tr.StopAll()
	require.Empty(t, tr.Typers())
}

func TestTypingTrackerExpiryHookRuns(t *testing.T) {
	expired := make(chan string, 1)
	tr := NewTypingTracker(20*time.Millisecond, func(peer string) {
		expired <- peer
	})
	defer tr.StopAll()

	tr.Mark("u2")
	select {
	case peer := <-expired:
		require.Equal(t, "u2", peer)
	case <-time.After(time.Second):
		t.Fatal("expiry hook never fired")
	}
	require.False(t, tr.IsTyping("u2"))
}
