// Reconciliation controller: merges locally-originated sends and deletes
// with server- and stream-originated events into one consistent message
// store, without duplication or loss.
//
// Consistency rules, in brief:
//   - Sends are optimistic: a placeholder with a client-generated id is
//     appended immediately, then replaced in place by the server-confirmed
//     row. Rejected sends roll the placeholder back.
//   - Pushes are idempotent: an event whose id already exists in the store
//     is ignored, which makes the outcome independent of whether the HTTP
//     confirmation or the stream echo of the same send arrives first.
//   - Deletes are optimistic too, but a failed delete is repaired by an
//     authoritative history refetch, never by guessing the prior state.
//   - Every in-flight operation is tagged with the epoch of the room it was
//     issued for; results arriving after a room switch are discarded.
package chatsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careward/hospital-chat/internal/domain"
)

// RequestChannel is the synchronous, durable path to the backend. Calls are
// one-shot; the controller owns retry and rollback policy.
type RequestChannel interface {
	History(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// Send persists a message. key, when non-empty, identifies the logical
	// send so backend-side replay detection can absorb retries.
	Send(ctx context.Context, roomID, sender, body, key string) (*domain.ChatMessage, error)
	Delete(ctx context.Context, roomID, id string) error
}

// StreamChannel is the best-effort live path: one reconnecting push
// connection scoped to a single room.
type StreamChannel interface {
	Bind(roomID string)
	Close()
	Retry()
	State() ConnState
	Connected() bool
	Emit(ev domain.StreamEvent)
	Events() <-chan domain.StreamEvent
}

// ControllerConfig wires a Controller's collaborators.
type ControllerConfig struct {
	Request RequestChannel
	Stream  StreamChannel
	// Sender is the display name stamped on outgoing messages.
	Sender string
	// Notify receives user-visible failure notices. Optional.
	Notify func(Notice)
	// Logger receives drop diagnostics. The zero value is a disabled logger.
	Logger zerolog.Logger
}

// Controller owns the message store for the currently selected appointment
// and is its only mutator. Safe for concurrent use; request-channel calls
// block the calling goroutine, so interactive callers typically invoke
// SendMessage/DeleteMessage from their own goroutines.
type Controller struct {
	rest     RequestChannel
	stream   StreamChannel
	store    *Store
	sender   string
	clientID string
	notify   func(Notice)
	logger   zerolog.Logger

	mu     sync.Mutex
	roomID string
	epoch  uint64 // bumped on every room switch; tags in-flight operations
	seq    uint64 // optimistic id counter, monotonic per controller
}

// NewController constructs a controller with an empty store and no room
// selected.
func NewController(cfg ControllerConfig) *Controller {
	notify := cfg.Notify
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Controller{
		rest:     cfg.Request,
		stream:   cfg.Stream,
		store:    NewStore(),
		sender:   cfg.Sender,
		clientID: uuid.NewString()[:8],
		notify:   notify,
		logger:   cfg.Logger,
	}
}

// Messages returns a point-in-time copy of the store, in order.
func (c *Controller) Messages() []Message { return c.store.Snapshot() }

// Room returns the currently selected room id, or "".
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// StreamState exposes the stream channel's connection state for the UI's
// live/offline indicator.
func (c *Controller) StreamState() ConnState { return c.stream.State() }

// Run pumps stream events into the store until ctx is cancelled, then tears
// the stream down. Call it from a dedicated goroutine.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stream.Close()
			return
		case ev := <-c.stream.Events():
			c.handleStreamEvent(ev)
		}
	}
}

// SelectRoom switches the conversation view to roomID: tear down the
// stream, reset the store, load history, rebind the stream. A history
// failure leaves the store empty and raises a notice, but the stream is
// still bound so live updates resume once the backend recovers.
func (c *Controller) SelectRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.stream.Close()
	c.epoch++
	epoch := c.epoch
	c.roomID = roomID
	c.store.Reset()
	c.mu.Unlock()

	history, err := c.rest.History(ctx, roomID)

	c.mu.Lock()
	if c.epoch != epoch {
		// The user moved on to another room while this fetch was in
		// flight; its result must not touch the new room's store, and the
		// stream stays with whichever switch superseded this one.
		c.mu.Unlock()
		return nil
	}
	if err == nil {
		c.store.ResetTo(history)
	}
	// Bind while the epoch is known current so a concurrent SelectRoom
	// cannot leave the stream pointed at a stale room.
	c.stream.Bind(roomID)
	c.mu.Unlock()

	if err != nil {
		c.notify(Notice{Kind: NoticeFetchFailed, Message: "could not load conversation history", Err: err})
	}
	return err
}

// SendMessage validates, appends an optimistic entry, performs the durable
// write, and reconciles the result. On rejection the optimistic entry is
// rolled back and the caller should keep the composed text for retry.
func (c *Controller) SendMessage(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)

	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeValidation, Message: "select an appointment first", Err: ErrNoRoom})
		return ErrNoRoom
	}
	if body == "" {
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeValidation, Message: "message is empty", Err: ErrEmptyBody})
		return ErrEmptyBody
	}
	roomID := c.roomID
	epoch := c.epoch
	c.seq++
	optID := fmt.Sprintf("local-%s-%d", c.clientID, c.seq)
	c.store.Append(Message{
		ChatMessage: domain.ChatMessage{
			ID:        optID,
			RoomID:    roomID,
			Sender:    c.sender,
			Body:      body,
			CreatedAt: time.Now().UTC(),
		},
		Delivery: DeliveryPending,
	})
	c.mu.Unlock()

	// The optimistic id doubles as the idempotency key: it names this
	// logical send uniquely, so a retried POST replays the stored row
	// instead of inserting a duplicate.
	confirmed, err := c.rest.Send(ctx, roomID, c.sender, body, optID)

	c.mu.Lock()
	if c.epoch != epoch {
		// Room switched while the send was in flight; the store was reset
		// and the placeholder is already gone.
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.store.Remove(optID)
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeSendFailed, Message: "message not sent", Err: err})
		return err
	}
	if c.store.Contains(confirmed.ID) {
		// The stream echo of this send beat the HTTP confirmation; the
		// confirmed row is already present, so only the placeholder goes.
		c.store.Remove(optID)
	} else {
		c.store.Replace(optID, Message{ChatMessage: *confirmed, Delivery: DeliveryConfirmed})
	}
	c.mu.Unlock()

	// Best-effort live fan-out to other participants. The write above is
	// already durable; losing this emission only delays their view until
	// the next history fetch.
	if c.stream.Connected() {
		c.stream.Emit(domain.StreamEvent{Type: domain.EventSend, RoomID: roomID, Message: confirmed})
	}
	return nil
}

// DeleteMessage removes id locally, performs the durable delete, and on
// failure resynchronizes the store from an authoritative history refetch
// rather than re-inserting a guess.
func (c *Controller) DeleteMessage(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		c.notify(Notice{Kind: NoticeValidation, Message: "select an appointment first", Err: ErrNoRoom})
		return ErrNoRoom
	}
	roomID := c.roomID
	epoch := c.epoch
	c.store.Remove(id)
	c.mu.Unlock()

	err := c.rest.Delete(ctx, roomID, id)
	if err == nil {
		if c.stream.Connected() {
			c.stream.Emit(domain.StreamEvent{Type: domain.EventDelete, RoomID: roomID, MessageID: id})
		}
		return nil
	}

	history, herr := c.rest.History(ctx, roomID)

	c.mu.Lock()
	if c.epoch == epoch && herr == nil {
		c.store.ResetTo(history)
	}
	c.mu.Unlock()

	c.notify(Notice{Kind: NoticeDeleteFailed, Message: "message not deleted", Err: err})
	return err
}

// Reconnect rebinds the stream to the current room without touching the
// store. This backs the manual retry affordance shown once automatic
// reconnection attempts are exhausted.
func (c *Controller) Reconnect() { c.stream.Retry() }

// handleStreamEvent applies one push event to the store. Malformed payloads
// are dropped silently; duplicates are ignored by id.
func (c *Controller) handleStreamEvent(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventMessageReceived:
		m := ev.Message
		if m == nil || m.ID == "" || m.Sender == "" || m.Body == "" {
			c.logger.Debug().Str("type", ev.Type).Msg("malformed push dropped")
			return
		}
		c.mu.Lock()
		if m.RoomID != "" && m.RoomID != c.roomID {
			c.mu.Unlock()
			return
		}
		if !c.store.Contains(m.ID) {
			c.store.Append(Message{ChatMessage: *m, Delivery: DeliveryConfirmed})
		}
		c.mu.Unlock()

	case domain.EventMessageDeleted:
		if ev.MessageID == "" {
			c.logger.Debug().Str("type", ev.Type).Msg("malformed push dropped")
			return
		}
		c.store.Remove(ev.MessageID)

	default:
		c.logger.Debug().Str("type", ev.Type).Msg("unknown push dropped")
	}
}
