// Package hub implements the server side of the live message stream: a
// room-scoped fan-out of message and deletion events to every websocket
// subscriber of an appointment.
//
// The hub is deliberately not a write path. Durable writes go through the
// HTTP API; connected clients emit best-effort notifications here after
// their HTTP call succeeds, and the hub relays them to the rest of the
// room. When a Redis client is configured, events are additionally
// published per room so that subscribers connected to other instances of
// the service receive them too.
package hub

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careward/hospital-chat/internal/domain"
)

// redisChannelPrefix namespaces the per-room pub/sub channels.
const redisChannelPrefix = "chat:room:"

// Hub routes stream events between the websocket clients of all rooms.
// All state is owned by the Run goroutine; external goroutines communicate
// through channels only.
type Hub struct {
	registerCh   chan *client
	unregisterCh chan *client
	incomingCh   chan domain.StreamEvent
	pubsubCh     chan domain.StreamEvent

	rooms map[string]map[*client]struct{}

	rdb    *redis.Client
	logger zerolog.Logger
}

// New constructs a hub. rdb may be nil for single-instance deployments.
func New(rdb *redis.Client, logger zerolog.Logger) *Hub {
	return &Hub{
		registerCh:   make(chan *client),
		unregisterCh: make(chan *client),
		incomingCh:   make(chan domain.StreamEvent, 64),
		pubsubCh:     make(chan domain.StreamEvent, 64),
		rooms:        make(map[string]map[*client]struct{}),
		rdb:          rdb,
		logger:       logger,
	}
}

// Run owns all room state. It processes registrations, client events, and
// cross-instance pub/sub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for c := range room {
					c.close()
				}
			}
			return

		case c := <-h.registerCh:
			room := h.rooms[c.roomID]
			if room == nil {
				room = make(map[*client]struct{})
				h.rooms[c.roomID] = room
			}
			room[c] = struct{}{}
			h.logger.Debug().Str("room_id", c.roomID).Int("subscribers", len(room)).Msg("client joined")

		case c := <-h.unregisterCh:
			if room, ok := h.rooms[c.roomID]; ok {
				if _, ok := room[c]; ok {
					delete(room, c)
					c.close()
					if len(room) == 0 {
						delete(h.rooms, c.roomID)
					}
				}
			}

		case ev := <-h.incomingCh:
			h.broadcast(ev)
			h.publish(ctx, ev)

		case ev := <-h.pubsubCh:
			// Already durable on the emitting instance; local fan-out only.
			h.broadcast(ev)
		}
	}
}

// broadcast relays a server event to every subscriber of its room. Clients
// whose send buffer is full are dropped; their read pump will unregister
// them.
func (h *Hub) broadcast(ev domain.StreamEvent) {
	out, ok := toServerEvent(ev)
	if !ok {
		h.logger.Debug().Str("type", ev.Type).Msg("unroutable event dropped")
		return
	}
	for c := range h.rooms[out.RoomID] {
		select {
		case c.send <- out:
		default:
			h.logger.Warn().Str("room_id", out.RoomID).Msg("slow subscriber dropped")
			delete(h.rooms[out.RoomID], c)
			c.close()
		}
	}
}

// publish forwards the event to the room's Redis channel, if configured.
func (h *Hub) publish(ctx context.Context, ev domain.StreamEvent) {
	if h.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := h.rdb.Publish(ctx, redisChannelPrefix+ev.RoomID, raw).Err(); err != nil {
		h.logger.Warn().Err(err).Str("room_id", ev.RoomID).Msg("pubsub publish failed")
	}
}

// subscribeLoop feeds events published by other instances into the hub.
func (h *Hub) subscribeLoop(ctx context.Context) {
	sub := h.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var ev domain.StreamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Debug().Err(err).Msg("malformed pubsub payload dropped")
				continue
			}
			// Skip the echo of our own publishes only if the room has no
			// local subscribers; duplicate delivery is harmless because
			// clients dedupe by message id.
			select {
			case h.pubsubCh <- ev:
			default:
				h.logger.Warn().Msg("pubsub backlog full; event dropped")
			}
		}
	}
}

// toServerEvent maps a client intent (send/delete) onto the server → client
// event the room subscribers expect, validating required fields.
func toServerEvent(ev domain.StreamEvent) (domain.StreamEvent, bool) {
	switch ev.Type {
	case domain.EventSend, domain.EventMessageReceived:
		m := ev.Message
		if m == nil || strings.TrimSpace(m.ID) == "" || m.Sender == "" || m.Body == "" {
			return domain.StreamEvent{}, false
		}
		roomID := ev.RoomID
		if roomID == "" {
			roomID = m.RoomID
		}
		if roomID == "" {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Type: domain.EventMessageReceived, RoomID: roomID, Message: m}, true

	case domain.EventDelete, domain.EventMessageDeleted:
		if ev.RoomID == "" || ev.MessageID == "" {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Type: domain.EventMessageDeleted, RoomID: ev.RoomID, MessageID: ev.MessageID}, true

	default:
		return domain.StreamEvent{}, false
	}
}
