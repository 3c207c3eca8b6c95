package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhandras/parley/internal/metrics"
	"github.com/bhandras/parley/internal/notify"
	"github.com/bhandras/parley/internal/protocol/wire"
	"github.com/bhandras/parley/internal/storage"
	"github.com/bhandras/parley/pkg/logger"
)

// requestTimeout bounds the REST calls issued by the session.
const requestTimeout = 15 * time.Second

// API is the REST surface the session consumes.
type API interface {
	Users(ctx context.Context) ([]wire.User, error)
	Groups(ctx context.Context) ([]wire.Group, error)
	PrivateMessages(ctx context.Context, otherUserID string) ([]wire.Message, error)
	GroupMessages(ctx context.Context, groupID string) ([]wire.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Transport is the duplex event-stream connection the session consumes.
type Transport interface {
	OnEvent(fn func(data []byte))
	Connect()
	Send(v any)
	Close() error
}

// Options configures a Session.
type Options struct {
	// SelfID is the current user id.
	SelfID string
	// TypingExpiry is how long a peer stays typing without a fresh signal.
	TypingExpiry time.Duration
	// DedupWindow is the echo dedup timestamp tolerance.
	DedupWindow time.Duration
	// Settings are the user's notification preferences.
	Settings storage.Settings
	// SoundNotifier handles sound alerts; nil disables them.
	SoundNotifier notify.Notifier
	// PushNotifier handles push alerts; nil disables them.
	PushNotifier notify.Notifier
	// OnChange, when set, is invoked after every applied state delta so the
	// UI layer can re-render. It runs on the dispatch goroutine and must not
	// block.
	OnChange func()
}

// Session is the process-scoped realtime chat core.
//
// It owns the conversation selection, message list, typing tracker, presence
// set and roster, and funnels every mutation (inbound events, user actions,
// async load results, timer expiries) through a single dispatch goroutine.
// Create one with NewSession and release it with Teardown.
type Session struct {
	api       API
	transport Transport
	opts      Options

	dispatch *dispatcher

	// All fields below are owned by the dispatch goroutine.
	selection Selection
	// loadGen guards against stale history loads: a response is applied only
	// if no newer selection happened since the request was issued.
	loadGen uint64

	messages   *MessageList
	typing     *TypingTracker
	presence   *PresenceSet
	roster     *Roster
	reconciler *Reconciler

	settingsMu sync.Mutex
	settings   storage.Settings

	teardownOnce sync.Once
}

// NewSession wires the core together and starts its dispatch goroutine. The
// transport is not connected yet; call Start.
func NewSession(api API, transport Transport, opts Options) *Session {
	s := &Session{
		api:       api,
		transport: transport,
		opts:      opts,
		dispatch:  newDispatcher(0),
		selection: NoSelection(),
		messages:  NewMessageList(opts.DedupWindow),
		presence:  NewPresenceSet(),
		roster:    NewRoster(),
		settings:  opts.Settings,
	}

	s.typing = NewTypingTracker(opts.TypingExpiry, func(peerID string) {
		// State is already cleared; just surface the change.
		_ = s.dispatch.do(s.notifyChange)
	})

	s.reconciler = &Reconciler{
		self:             opts.SelfID,
		selection:        func() Selection { return s.selection },
		messages:         s.messages,
		typing:           s.typing,
		presence:         s.presence,
		roster:           s.roster,
		onForeignMessage: s.handleForeignMessage,
	}

	transport.OnEvent(func(data []byte) {
		// The transport delivers frames sequentially, and do() preserves
		// queue order, so reconciliation keeps arrival order.
		_ = s.dispatch.do(func() {
			s.reconciler.HandleRaw(data)
			s.notifyChange()
		})
	})

	return s
}

// Start connects the transport and triggers the initial roster load.
func (s *Session) Start() {
	s.transport.Connect()
	s.RefreshRoster()
}

// SelectConversation makes a conversation active: the message list is
// cleared immediately and the full history is loaded asynchronously.
func (s *Session) SelectConversation(id string, kind Kind) {
	_ = s.dispatch.do(func() {
		if kind == KindNone || id == "" {
			s.clearSelectionLocked()
			s.notifyChange()
			return
		}

		s.selection = Selection{Kind: kind, ID: id}
		s.messages.Clear()
		s.loadGen++
		gen := s.loadGen
		s.notifyChange()

		go s.loadHistory(gen, id, kind)
	})
}

// clearSelectionLocked resets to no selection. Dispatch goroutine only.
func (s *Session) clearSelectionLocked() {
	s.selection = NoSelection()
	s.messages.Clear()
	s.loadGen++
}

// loadHistory fetches a conversation's history and applies it unless the
// selection moved on while the request was in flight.
func (s *Session) loadHistory(gen uint64, id string, kind Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var (
		msgs []wire.Message
		err  error
	)
	switch kind {
	case KindGroup:
		msgs, err = s.api.GroupMessages(ctx, id)
	default:
		msgs, err = s.api.PrivateMessages(ctx, id)
	}
	if err != nil {
		// Best effort: the UI keeps whatever it has, the next selection
		// retries naturally.
		logger.Warnf("session: history load for %s %s failed: %v", kind, id, err)
		return
	}

	_ = s.dispatch.do(func() {
		if gen != s.loadGen {
			metrics.StaleHistoryLoads.Inc()
			logger.Debugf("session: discarding stale history for %s %s", kind, id)
			return
		}
		s.messages.Replace(msgs)
		// The conversation is now read: zero the local counter without
		// waiting for the server and acknowledge in the background.
		s.roster.ZeroUnread(id, kind)
		s.notifyChange()

		go s.acknowledgeRead(id)
	})
}

// acknowledgeRead tells the server the conversation was read.
func (s *Session) acknowledgeRead(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.api.MarkRead(ctx, id); err != nil {
		logger.Warnf("session: mark read for %s failed: %v", id, err)
	}
}

// SendMessage sends a message to the active conversation, inserting a local
// echo immediately. The server broadcast of the same send is absorbed by the
// dedup window.
func (s *Session) SendMessage(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	_ = s.dispatch.do(func() {
		if s.selection.IsNone() {
			logger.Debugf("session: send without a selected conversation dropped")
			return
		}

		isGroup := s.selection.Kind == KindGroup
		msg := wire.Message{
			ID:          uuid.NewString(),
			SenderID:    s.opts.SelfID,
			RecipientID: s.selection.ID,
			Content:     content,
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			IsGroup:     isGroup,
		}
		if isGroup {
			msg.GroupID = s.selection.ID
		}
		s.messages.Add(msg)

		s.transport.Send(wire.NewOutboundMessage(content, s.selection.ID, isGroup))
		s.notifyChange()
	})
}

// SendTyping signals that the local user is composing a message in the
// active conversation.
func (s *Session) SendTyping() {
	_ = s.dispatch.do(func() {
		if s.selection.IsNone() {
			return
		}
		s.transport.Send(wire.NewOutboundTyping(s.selection.ID, s.selection.Kind == KindGroup))
	})
}

// RefreshRoster resyncs the sidebar summaries from the server. The refresh
// is a full resync, not an incremental patch.
func (s *Session) RefreshRoster() {
	go s.refreshRoster()
}

func (s *Session) refreshRoster() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	users, err := s.api.Users(ctx)
	if err != nil {
		logger.Warnf("session: roster user refresh failed: %v", err)
		return
	}
	groups, err := s.api.Groups(ctx)
	if err != nil {
		logger.Warnf("session: roster group refresh failed: %v", err)
		return
	}

	_ = s.dispatch.do(func() {
		s.roster.Update(users, groups)

		// A selected group that vanished server-side clears the selection.
		if s.selection.Kind == KindGroup && !s.roster.HasGroup(s.selection.ID) {
			logger.Infof("session: selected group %s was deleted", s.selection.ID)
			s.clearSelectionLocked()
		}
		s.notifyChange()
	})
}

// handleForeignMessage fires the notification side effects for a message
// outside the active conversation and resyncs the roster. Runs on the
// dispatch goroutine.
func (s *Session) handleForeignMessage(msg wire.Message) {
	s.settingsMu.Lock()
	settings := s.settings
	s.settingsMu.Unlock()

	n := notify.Notification{
		Title:    "New message",
		Body:     msg.Content,
		AlertKey: "message:" + conversationKey(msg),
	}
	if settings.Sound && s.opts.SoundNotifier != nil {
		go s.deliverNotification(s.opts.SoundNotifier, n)
	}
	if settings.Push && s.opts.PushNotifier != nil {
		go s.deliverNotification(s.opts.PushNotifier, n)
	}

	s.RefreshRoster()
}

func (s *Session) deliverNotification(notifier notify.Notifier, n notify.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := notifier.Notify(ctx, n); err != nil {
		logger.Debugf("session: notification failed: %v", err)
	}
}

// conversationKey maps a message onto its conversation id for alerting.
func conversationKey(msg wire.Message) string {
	if msg.IsGroup {
		return msg.GroupID
	}
	return msg.SenderID
}

// UpdateSettings replaces the notification preferences.
func (s *Session) UpdateSettings(settings storage.Settings) {
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
}

// Settings returns the current notification preferences.
func (s *Session) Settings() storage.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// Selection returns the active conversation.
func (s *Session) Selection() Selection {
	v, err := s.dispatch.call(func() (any, error) {
		return s.selection, nil
	})
	if err != nil {
		return NoSelection()
	}
	return v.(Selection)
}

// Messages returns a copy of the active conversation's message list.
func (s *Session) Messages() []wire.Message {
	v, err := s.dispatch.call(func() (any, error) {
		return s.messages.Messages(), nil
	})
	if err != nil {
		return nil
	}
	return v.([]wire.Message)
}

// Roster returns the sidebar summaries.
func (s *Session) Roster() ([]wire.User, []wire.Group) {
	return s.roster.Users(), s.roster.Groups()
}

// Presence returns the presence set.
func (s *Session) Presence() *PresenceSet {
	return s.presence
}

// Typers returns the peers whose typing indicator should be displayed for
// the active conversation.
//
// Typing state for abandoned conversations is left to its own timers; this
// accessor filters it out of the display instead, so stale entries are never
// surfaced.
func (s *Session) Typers() []string {
	v, err := s.dispatch.call(func() (any, error) {
		return s.typersLocked(), nil
	})
	if err != nil {
		return nil
	}
	return v.([]string)
}

// typersLocked computes the display typing set. Dispatch goroutine only.
func (s *Session) typersLocked() []string {
	all := s.typing.Typers()
	switch s.selection.Kind {
	case KindPrivate:
		for _, peer := range all {
			if peer == s.selection.ID {
				return []string{peer}
			}
		}
		return nil
	case KindGroup:
		members, ok := s.roster.GroupMembers(s.selection.ID)
		if !ok {
			return nil
		}
		memberSet := make(map[string]struct{}, len(members))
		for _, m := range members {
			memberSet[m] = struct{}{}
		}
		out := make([]string, 0, len(all))
		for _, peer := range all {
			if peer == s.opts.SelfID {
				continue
			}
			if _, ok := memberSet[peer]; ok {
				out = append(out, peer)
			}
		}
		return out
	default:
		return nil
	}
}

// notifyChange surfaces a state delta to the UI layer.
func (s *Session) notifyChange() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

// Teardown closes the connection, cancels all timers and stops the dispatch
// goroutine. The session cannot be reused afterwards.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			logger.Debugf("session: transport close: %v", err)
		}
		s.typing.StopAll()
		s.dispatch.stop()
	})
}
