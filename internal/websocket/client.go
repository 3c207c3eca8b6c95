// Package websocket owns the single logical event-stream connection to the
// chat server.
package websocket

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/bhandras/parley/internal/metrics"
	"github.com/bhandras/parley/pkg/logger"
)

// State is the connection lifecycle state.
type State int32

const (
	// StateDisconnected means no connection exists and none is being dialed.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the connection is live and events are flowing.
	StateConnected
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenFunc returns a fresh access token for the next connection attempt.
//
// It is called on every dial, so a rotated credential takes effect on the
// next reconnect without touching the live connection.
type TokenFunc func() (string, error)

// Client manages one logical duplex event-stream connection.
//
// On any closure it schedules exactly one reconnect after a fixed delay and
// keeps retrying forever. Inbound frames are delivered in arrival order via
// a single callback; outbound sends while disconnected are silently dropped.
type Client struct {
	socketURL      string
	tokenFn        TokenFunc
	reconnectDelay time.Duration

	// dialFn is swapped out by tests.
	dialFn func(urlStr string) (*gorilla.Conn, error)

	mu             sync.Mutex
	state          State
	conn           *gorilla.Conn
	reconnectTimer *time.Timer
	closed         bool

	// wmu serializes writes; gorilla connections allow one writer at a time.
	wmu sync.Mutex

	onEvent func(data []byte)
}

// NewClient creates a transport client for the given websocket endpoint.
func NewClient(socketURL string, tokenFn TokenFunc, reconnectDelay time.Duration) *Client {
	return &Client{
		socketURL:      socketURL,
		tokenFn:        tokenFn,
		reconnectDelay: reconnectDelay,
		dialFn: func(urlStr string) (*gorilla.Conn, error) {
			conn, _, err := gorilla.DefaultDialer.Dial(urlStr, nil)
			return conn, err
		},
	}
}

// OnEvent registers the inbound frame callback. Must be called before
// Connect; frames are delivered sequentially from a single goroutine.
func (c *Client) OnEvent(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// Connect establishes the connection if none is active or pending.
//
// Calling it again while connecting, connected, or awaiting a scheduled
// reconnect is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

// dial performs one connection attempt with a freshly fetched credential.
func (c *Client) dial() {
	token, err := c.tokenFn()
	if err != nil {
		logger.Warnf("websocket: token fetch failed: %v", err)
		c.dialFailed()
		return
	}

	urlStr := c.socketURL + "?token=" + url.QueryEscape(token)
	conn, err := c.dialFn(urlStr)
	if err != nil {
		logger.Warnf("websocket: dial failed: %v", err)
		c.dialFailed()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	logger.Infof("websocket: connected to %s", c.socketURL)
	go c.readLoop(conn)
}

func (c *Client) dialFailed() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.scheduleReconnect()
}

// readLoop delivers inbound frames in arrival order until the connection
// drops, then clears state and schedules a reconnect.
func (c *Client) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				logger.Warnf("websocket: connection lost: %v", err)
			}
			break
		}

		c.mu.Lock()
		fn := c.onEvent
		c.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	}

	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}

	metrics.ReconnectsScheduled.Inc()
	logger.Debugf("websocket: reconnecting in %s", c.reconnectDelay)

	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		c.dial()
	})
}

// Send transmits a structured event on the active connection.
//
// The frame is dropped when no connection is live; the reconnect loop is
// expected to restore connectivity and the user is not warned.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		metrics.DroppedSends.Inc()
		logger.Debugf("websocket: send dropped, not connected")
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("websocket: failed to marshal outbound event: %v", err)
		return
	}

	c.wmu.Lock()
	err = conn.WriteMessage(gorilla.TextMessage, data)
	c.wmu.Unlock()
	if err != nil {
		// The read loop observes the same failure and handles reconnect.
		logger.Warnf("websocket: send failed: %v", err)
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close tears the connection down and cancels any pending reconnect.
// The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
