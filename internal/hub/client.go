// Websocket client plumbing: per-connection read/write pumps in the
// standard gorilla/websocket arrangement (reads on one goroutine, all
// writes funneled through a buffered channel to a second).
package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/careward/hospital-chat/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// client is one live websocket subscription to a room.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	roomID  string
	send    chan domain.StreamEvent
	closed  chan struct{}
	onClose func()
}

// Serve attaches an upgraded websocket connection to the hub for roomID
// and starts its pumps. The HTTP handler has already validated that the
// room exists. onClose, if non-nil, runs once when the read pump ends.
func (h *Hub) Serve(conn *websocket.Conn, roomID string, onClose func()) {
	c := &client{
		hub:     h,
		conn:    conn,
		roomID:  roomID,
		send:    make(chan domain.StreamEvent, sendBuffer),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
	h.registerCh <- c
	go c.writePump()
	go c.readPump()
}

// close makes the write pump drain out and the connection shut. Safe to
// call more than once via the closed guard channel.
func (c *client) close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// readPump decodes client frames and forwards valid intents to the hub.
// Malformed frames are skipped rather than killing the connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregisterCh <- c
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("room_id", c.roomID).Msg("stream read ended")
			}
			return
		}

		var ev domain.StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.hub.logger.Debug().Err(err).Str("room_id", c.roomID).Msg("malformed client frame dropped")
			continue
		}

		switch ev.Type {
		case domain.EventJoin:
			// Subscription happened at upgrade time; a repeated join is a
			// harmless no-op.
		case domain.EventSend, domain.EventDelete:
			// Pin the event to the room this connection joined; clients
			// cannot inject into other appointments.
			ev.RoomID = c.roomID
			c.hub.incomingCh <- ev
		default:
			c.hub.logger.Debug().Str("type", ev.Type).Msg("unknown client event dropped")
		}
	}
}

// writePump serializes all writes: fan-out events from the hub and the
// keepalive pings that let the read side detect dead peers.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
