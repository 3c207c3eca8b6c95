package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/parley/internal/notify"
	"github.com/bhandras/parley/internal/protocol/wire"
	"github.com/bhandras/parley/internal/storage"
)

// fakeAPI is an in-memory API implementation. History calls can be gated per
// conversation id so tests can hold a load in flight.
type fakeAPI struct {
	mu        sync.Mutex
	users     []wire.User
	groups    []wire.Group
	private   map[string][]wire.Message
	groupMsgs map[string][]wire.Message
	block     map[string]chan struct{}
	marked    []string
	userCalls int

	// started receives the conversation id when a history call begins.
	started chan string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		private:   make(map[string][]wire.Message),
		groupMsgs: make(map[string][]wire.Message),
		block:     make(map[string]chan struct{}),
	}
}

func (a *fakeAPI) Users(ctx context.Context) ([]wire.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userCalls++
	return append([]wire.User(nil), a.users...), nil
}

func (a *fakeAPI) Groups(ctx context.Context) ([]wire.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]wire.Group(nil), a.groups...), nil
}

func (a *fakeAPI) history(msgs []wire.Message, id string, gate chan struct{}, started chan string) ([]wire.Message, error) {
	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}
	return msgs, nil
}

func (a *fakeAPI) PrivateMessages(ctx context.Context, otherUserID string) ([]wire.Message, error) {
	a.mu.Lock()
	msgs := append([]wire.Message(nil), a.private[otherUserID]...)
	gate := a.block[otherUserID]
	started := a.started
	a.mu.Unlock()
	return a.history(msgs, otherUserID, gate, started)
}

func (a *fakeAPI) GroupMessages(ctx context.Context, groupID string) ([]wire.Message, error) {
	a.mu.Lock()
	msgs := append([]wire.Message(nil), a.groupMsgs[groupID]...)
	gate := a.block[groupID]
	started := a.started
	a.mu.Unlock()
	return a.history(msgs, groupID, gate, started)
}

func (a *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marked = append(a.marked, conversationID)
	return nil
}

func (a *fakeAPI) markedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.marked...)
}

func (a *fakeAPI) userCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userCalls
}

// fakeTransport captures outbound frames and lets tests inject inbound ones.
type fakeTransport struct {
	mu       sync.Mutex
	handler  func(data []byte)
	sent     []any
	connects int
	closes   int
}

func (tr *fakeTransport) OnEvent(fn func(data []byte)) {
	tr.mu.Lock()
	tr.handler = fn
	tr.mu.Unlock()
}

func (tr *fakeTransport) Connect() {
	tr.mu.Lock()
	tr.connects++
	tr.mu.Unlock()
}

func (tr *fakeTransport) Send(v any) {
	tr.mu.Lock()
	tr.sent = append(tr.sent, v)
	tr.mu.Unlock()
}

func (tr *fakeTransport) Close() error {
	tr.mu.Lock()
	tr.closes++
	tr.mu.Unlock()
	return nil
}

func (tr *fakeTransport) inject(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	tr.mu.Lock()
	handler := tr.handler
	tr.mu.Unlock()
	require.NotNil(t, handler, "transport has no event handler")
	handler(data)
}

func (tr *fakeTransport) sentFrames() []any {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]any(nil), tr.sent...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note notify.Notification) error {
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) notifications() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.notes...)
}

func newTestSession(t *testing.T, api *fakeAPI, transport *fakeTransport, opts Options) *Session {
	t.Helper()
	if opts.SelfID == "" {
		opts.SelfID = "u1"
	}
	if opts.TypingExpiry == 0 {
		opts.TypingExpiry = time.Hour
	}
	if opts.DedupWindow == 0 {
		opts.DedupWindow = 2 * time.Second
	}
	s := NewSession(api, transport, opts)
	t.Cleanup(s.Teardown)
	return s
}

func historyMsg(sender, content string) wire.Message {
	return wire.Message{
		SenderID:  sender,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func TestSessionSelectClearsThenLoads(t *testing.T) {
	api := newFakeAPI()
	api.users = []wire.User{{ID: "u2", Name: "Bob", UnreadCount: 3}}
	api.private["u2"] = []wire.Message{
		historyMsg("u2", "first"),
		historyMsg("u1", "second"),
	}

	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})
	s.Start()

	s.SelectConversation("u2", KindPrivate)
	require.Equal(t, PrivateSelection("u2"), s.Selection())

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "first", s.Messages()[0].Content)

	// The load acknowledged the read and zeroed the local counter.
	require.Eventually(t, func() bool {
		users, _ := s.Roster()
		return len(users) == 1 && users[0].UnreadCount == 0
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		ids := api.markedIDs()
		return len(ids) == 1 && ids[0] == "u2"
	}, time.Second, 5*time.Millisecond)
}

func TestSessionStaleHistoryLoadIsDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.private["u2"] = []wire.Message{historyMsg("u2", "stale history")}
	api.private["u3"] = []wire.Message{historyMsg("u3", "fresh history")}
	api.started = make(chan string, 4)

	gate := make(chan struct{})
	api.block["u2"] = gate

	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})

	// Select A; its load starts and hangs on the gate.
	s.SelectConversation("u2", KindPrivate)
	require.Equal(t, "u2", <-api.started)

	// Select B before A's load resolves.
	s.SelectConversation("u3", KindPrivate)
	require.Equal(t, "u3", <-api.started)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Content == "fresh history"
	}, time.Second, 5*time.Millisecond)

	// Let A's load finish late. It must be discarded.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "fresh history", msgs[0].Content)

	// Only the surviving load acknowledged a read.
	require.Equal(t, []string{"u3"}, api.markedIDs())
}

func TestSessionOptimisticSendAndEchoDedup(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})

	s.SelectConversation("u2", KindPrivate)
	require.Eventually(t, func() bool {
		return len(api.markedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	s.SendMessage("  hello  ")

	// The local echo shows up immediately, trimmed, with a client id.
	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
	echo := s.Messages()[0]
	require.Equal(t, "hello", echo.Content)
	require.Equal(t, "u1", echo.SenderID)
	require.NotEmpty(t, echo.ID)

	frames := tr.sentFrames()
	require.Len(t, frames, 1)
	require.Equal(t, wire.NewOutboundMessage("hello", "u2", false), frames[0])

	// The server broadcast of the same send is absorbed by the dedup window.
	tr.inject(t, wire.Message{
		SenderID:    "u1",
		RecipientID: "u2",
		Content:     "hello",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		IsGroup:     false,
	})
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Messages(), 1)

	// Blank sends are dropped before reaching the transport.
	s.SendMessage("   ")
	require.Len(t, tr.sentFrames(), 1)
}

func TestSessionRepeatedIdenticalSendsBothDisplayed(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})

	s.SelectConversation("u2", KindPrivate)
	require.Eventually(t, func() bool {
		return len(api.markedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	// Sending the same content twice in quick succession is two real
	// messages: both go out and both stay visible.
	s.SendMessage("ok")
	s.SendMessage("ok")

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Len(t, tr.sentFrames(), 2)

	// A server echo of the send is still absorbed.
	tr.inject(t, wire.Message{
		SenderID:    "u1",
		RecipientID: "u2",
		Content:     "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	time.Sleep(50 * time.Millisecond)
	require.Len(t, s.Messages(), 2)
}

func TestSessionForeignMessageNotifiesAndRefreshes(t *testing.T) {
	api := newFakeAPI()
	api.users = []wire.User{{ID: "u2"}, {ID: "u3"}}

	sound := &recordingNotifier{}
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{
		Settings:      storage.Settings{Sound: true},
		SoundNotifier: sound,
	})
	s.Start()

	require.Eventually(t, func() bool {
		return api.userCallCount() > 0
	}, time.Second, 5*time.Millisecond)
	calls := api.userCallCount()

	s.SelectConversation("u2", KindPrivate)
	tr.inject(t, map[string]any{
		"type":      "message",
		"sender_id": "u3",
		"content":   "psst",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})

	require.Eventually(t, func() bool {
		return len(sound.notifications()) == 1
	}, time.Second, 5*time.Millisecond)
	note := sound.notifications()[0]
	require.Equal(t, "psst", note.Body)
	require.Equal(t, "message:u3", note.AlertKey)

	// The foreign message also forced a roster resync.
	require.Eventually(t, func() bool {
		return api.userCallCount() > calls
	}, time.Second, 5*time.Millisecond)
}

func TestSessionForeignMessageRespectsMutedSettings(t *testing.T) {
	api := newFakeAPI()
	sound := &recordingNotifier{}
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{
		Settings:      storage.Settings{Sound: false},
		SoundNotifier: sound,
	})

	tr.inject(t, map[string]any{
		"type":      "message",
		"sender_id": "u3",
		"content":   "psst",
	})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, sound.notifications())

	s.UpdateSettings(storage.Settings{Sound: true})
	tr.inject(t, map[string]any{
		"type":      "message",
		"sender_id": "u3",
		"content":   "again",
	})
	require.Eventually(t, func() bool {
		return len(sound.notifications()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionGroupDeletionClearsSelection(t *testing.T) {
	api := newFakeAPI()
	api.groups = []wire.Group{{ID: "g1", Name: "team", Members: []string{"u1", "u2"}}}
	api.groupMsgs["g1"] = []wire.Message{historyMsg("u2", "in the group")}

	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})
	s.Start()

	s.SelectConversation("g1", KindGroup)
	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	// The group disappears server-side; the next resync drops the selection.
	api.mu.Lock()
	api.groups = nil
	api.mu.Unlock()
	s.RefreshRoster()

	require.Eventually(t, func() bool {
		return s.Selection().IsNone() && len(s.Messages()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSessionTypersDisplayFilter(t *testing.T) {
	api := newFakeAPI()
	api.groups = []wire.Group{{ID: "g1", Members: []string{"u1", "u2", "u4"}}}

	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})
	s.Start()

	require.Eventually(t, func() bool {
		_, groups := s.Roster()
		return len(groups) == 1
	}, time.Second, 5*time.Millisecond)

	s.SelectConversation("g1", KindGroup)
	require.Eventually(t, func() bool {
		return len(api.markedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	tr.inject(t, map[string]any{"type": "typing", "sender_id": "u2", "is_group": true, "group_id": "g1"})
	tr.inject(t, map[string]any{"type": "typing", "sender_id": "u1", "is_group": true, "group_id": "g1"})

	// Only the non-self group member is displayed.
	require.Eventually(t, func() bool {
		typers := s.Typers()
		return len(typers) == 1 && typers[0] == "u2"
	}, time.Second, 5*time.Millisecond)
}

func TestSessionSendTyping(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{})

	// No selection: nothing goes out.
	s.SendTyping()
	require.Eventually(t, func() bool {
		return s.Selection().IsNone()
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, tr.sentFrames())

	s.SelectConversation("g1", KindGroup)
	s.SendTyping()
	require.Eventually(t, func() bool {
		frames := tr.sentFrames()
		return len(frames) == 1 && frames[0] == wire.NewOutboundTyping("g1", true)
	}, time.Second, 5*time.Millisecond)
}

func TestSessionOnChangeFires(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}

	changes := make(chan struct{}, 16)
	s := newTestSession(t, api, tr, Options{
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})

	tr.inject(t, map[string]any{"type": "online_users", "users": []string{"u2"}})
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification after an applied event")
	}
	require.True(t, s.Presence().IsOnline("u2"))
}

func TestSessionTeardownIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}
	s := NewSession(api, tr, Options{SelfID: "u1", TypingExpiry: time.Hour, DedupWindow: time.Second})

	s.Teardown()
	s.Teardown()

	tr.mu.Lock()
	closes := tr.closes
	tr.mu.Unlock()
	require.Equal(t, 1, closes)
}

func TestSessionEventOrderingUnderLoad(t *testing.T) {
	api := newFakeAPI()
	tr := &fakeTransport{}
	s := newTestSession(t, api, tr, Options{DedupWindow: time.Nanosecond})

	s.SelectConversation("u2", KindPrivate)
	require.Eventually(t, func() bool {
		return len(api.markedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	const n = 50
	for i := 0; i < n; i++ {
		tr.inject(t, map[string]any{
			"type":         "message",
			"sender_id":    "u2",
			"recipient_id": "u1",
			"content":      fmt.Sprintf("msg-%03d", i),
			"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	}

	require.Eventually(t, func() bool {
		return len(s.Messages()) == n
	}, time.Second, 5*time.Millisecond)
	msgs := s.Messages()
	for i, msg := range msgs {
		require.Equal(t, fmt.Sprintf("msg-%03d", i), msg.Content)
	}
}
