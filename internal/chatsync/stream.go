// Stream channel: the persistent websocket connection that delivers live
// push events for exactly one appointment room at a time.
//
// The channel is an explicit state machine (Disconnected → Connecting →
// Connected → Disconnected) with a bounded number of automatic reconnection
// attempts and a fixed delay between them. Once the attempts are exhausted
// the channel stays Disconnected until Retry is called. Failures never
// surface as errors to callers; the only observable signal is the
// connection state.
package chatsync

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/careward/hospital-chat/internal/domain"
)

// ConnState is the stream channel's connection state.
type ConnState int32

const (
	// StateDisconnected means no live connection and no dial in progress.
	StateDisconnected ConnState = iota
	// StateConnecting means a dial or automatic retry is in progress.
	StateConnecting
	// StateConnected means the handshake succeeded and the join event was
	// sent; push events flow until the connection drops.
	StateConnected
)

// String implements fmt.Stringer for status lines and logs.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Stream connection tuning. pongWait must exceed the server's ping period.
const (
	defaultMaxRetries       = 3
	defaultRetryDelay       = 3 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
	streamPongWait          = 60 * time.Second
	streamEventBuffer       = 64
)

// StreamConfig configures a StreamClient.
type StreamConfig struct {
	// BaseURL is the websocket root, e.g. "ws://localhost:8080/ws". The
	// room id is appended per binding.
	BaseURL string
	// MaxRetries bounds automatic reconnection attempts; <= 0 uses the
	// default of 3.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts; <= 0 uses 3s.
	RetryDelay time.Duration
	// HandshakeTimeout bounds each dial; <= 0 uses 5s.
	HandshakeTimeout time.Duration
	// OnState, when set, is invoked on every state transition. Called from
	// the stream goroutine; keep it fast and non-blocking.
	OnState func(ConnState)
	// Logger receives drop/teardown diagnostics. The zero value is a
	// disabled logger.
	Logger zerolog.Logger
}

// StreamClient maintains at most one live websocket connection, scoped to
// the room it was last bound to. Safe for concurrent use.
type StreamClient struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	events chan domain.StreamEvent
	state  atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	roomID  string
	gen     uint64 // binding generation; bumping it orphans older goroutines
	writeMu sync.Mutex
}

// NewStreamClient constructs a stream client. No connection is made until
// Bind is called.
func NewStreamClient(cfg StreamConfig) *StreamClient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &StreamClient{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		events: make(chan domain.StreamEvent, streamEventBuffer),
	}
}

// Events returns the channel on which push events are delivered. Events for
// a previous binding are never delivered after Bind returns.
func (c *StreamClient) Events() <-chan domain.StreamEvent { return c.events }

// State returns the current connection state.
func (c *StreamClient) State() ConnState { return ConnState(c.state.Load()) }

// Connected reports whether the channel is currently live.
func (c *StreamClient) Connected() bool { return c.State() == StateConnected }

// Bind tears down any existing connection and starts connecting to roomID.
// At most one live connection exists per client at any time.
func (c *StreamClient) Bind(roomID string) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.roomID = roomID
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	go c.run(gen, roomID)
}

// Close tears down the connection and stops all reconnection attempts.
func (c *StreamClient) Close() {
	c.mu.Lock()
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

// Retry rebinds to the current room. Used for the manual reconnect
// affordance after automatic attempts are exhausted; a no-op when no room
// has been bound yet.
func (c *StreamClient) Retry() {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return
	}
	c.Bind(roomID)
}

// Emit writes a client event over the live connection. Best-effort: when
// the channel is not connected, or the write fails, the event is dropped;
// the HTTP request channel remains the durable path.
func (c *StreamClient) Emit(ev domain.StreamEvent) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.State() != StateConnected {
		return
	}
	c.writeMu.Lock()
	err := conn.WriteJSON(ev)
	c.writeMu.Unlock()
	if err != nil {
		c.cfg.Logger.Debug().Err(err).Str("type", ev.Type).Msg("stream emit dropped")
	}
}

// run owns the connect/read/reconnect loop for one binding generation. It
// exits when the generation is superseded or the retry budget is spent.
func (c *StreamClient) run(gen uint64, roomID string) {
	attempts := 0
	for {
		if c.stale(gen) {
			return
		}
		c.setState(StateConnecting)

		conn, _, err := c.dialer.Dial(c.roomURL(roomID), nil)
		if err != nil {
			c.setState(StateDisconnected)
			attempts++
			if attempts > c.cfg.MaxRetries {
				c.cfg.Logger.Warn().
					Str("room_id", roomID).
					Int("attempts", attempts-1).
					Msg("stream retries exhausted; waiting for manual retry")
				return
			}
			time.Sleep(c.cfg.RetryDelay)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		// Subscribe to the room before anything else flows.
		c.writeMu.Lock()
		err = conn.WriteJSON(domain.StreamEvent{Type: domain.EventJoin, RoomID: roomID})
		c.writeMu.Unlock()
		if err != nil {
			conn.Close()
			c.setState(StateDisconnected)
			attempts++
			if attempts > c.cfg.MaxRetries {
				return
			}
			time.Sleep(c.cfg.RetryDelay)
			continue
		}

		c.setState(StateConnected)
		attempts = 0

		c.readLoop(gen, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if c.stale(gen) {
			return
		}
		attempts++
		if attempts > c.cfg.MaxRetries {
			c.cfg.Logger.Warn().
				Str("room_id", roomID).
				Msg("stream dropped and retries exhausted; waiting for manual retry")
			return
		}
		time.Sleep(c.cfg.RetryDelay)
	}
}

// readLoop decodes frames until the connection errors. Malformed frames are
// dropped without disturbing the connection; when the event buffer is full
// the frame is dropped and logged rather than blocking the read loop.
func (c *StreamClient) readLoop(gen uint64, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.cfg.Logger.Debug().Err(err).Msg("stream read ended")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var ev domain.StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.cfg.Logger.Debug().Err(err).Msg("malformed stream frame dropped")
			continue
		}

		if c.stale(gen) {
			return
		}
		select {
		case c.events <- ev:
		default:
			c.cfg.Logger.Warn().Str("type", ev.Type).Msg("stream event dropped: slow consumer")
		}
	}
}

// stale reports whether gen has been superseded by a newer Bind/Close.
func (c *StreamClient) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// setState records the state and fires the OnState callback on changes.
func (c *StreamClient) setState(s ConnState) {
	if ConnState(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

// roomURL builds the websocket endpoint for a room binding.
func (c *StreamClient) roomURL(roomID string) string {
	return fmt.Sprintf("%s/appointments/%s", c.cfg.BaseURL, roomID)
}
