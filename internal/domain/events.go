// Package domain defines the core persistence models for the application.
// This file declares the wire-level envelope exchanged over the websocket
// stream. Both the server hub and the synchronizing client decode the same
// shape, so it lives next to the persistence models rather than in either
// transport package.
package domain

// Stream event types. Client → server events carry user intent; server →
// client events fan out committed state to everyone joined to the room.
const (
	// EventJoin subscribes the connection to a room. Sent once per
	// connection, immediately after the handshake.
	EventJoin = "join"
	// EventSend asks the hub to fan a message out to the room. The HTTP
	// POST remains the durable write; this is best-effort notification.
	EventSend = "send"
	// EventDelete asks the hub to fan a deletion out to the room.
	EventDelete = "delete"

	// EventMessageReceived announces a new message to room subscribers.
	EventMessageReceived = "message_received"
	// EventMessageDeleted announces a deleted message id to room subscribers.
	EventMessageDeleted = "message_deleted"
)

// StreamEvent is the JSON envelope for every frame on the stream channel.
// Only the fields relevant to the event type are populated.
type StreamEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`

	// Message carries the full message for send/message_received events.
	Message *ChatMessage `json:"message,omitempty"`

	// MessageID identifies the target of delete/message_deleted events.
	MessageID string `json:"message_id,omitempty"`
}
