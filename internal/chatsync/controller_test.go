package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careward/hospital-chat/internal/domain"
)

//
// Fakes
//

type fakeRequest struct {
	mu        sync.Mutex
	history   func(roomID string) ([]domain.ChatMessage, error)
	send      func(roomID, sender, body, key string) (*domain.ChatMessage, error)
	delete    func(roomID, id string) error
	histCalls int
}

func (f *fakeRequest) History(_ context.Context, roomID string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	f.histCalls++
	fn := f.history
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(roomID)
}

func (f *fakeRequest) Send(_ context.Context, roomID, sender, body, key string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	fn := f.send
	f.mu.Unlock()
	if fn == nil {
		return &domain.ChatMessage{ID: "srv-1", RoomID: roomID, Sender: sender, Body: body}, nil
	}
	return fn(roomID, sender, body, key)
}

func (f *fakeRequest) Delete(_ context.Context, roomID, id string) error {
	f.mu.Lock()
	fn := f.delete
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(roomID, id)
}

func (f *fakeRequest) historyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histCalls
}

type fakeStream struct {
	mu        sync.Mutex
	bound     []string
	closes    int
	retries   int
	emitted   []domain.StreamEvent
	connected bool
	events    chan domain.StreamEvent
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.StreamEvent, 16), connected: true}
}

func (f *fakeStream) Bind(roomID string) {
	f.mu.Lock()
	f.bound = append(f.bound, roomID)
	f.mu.Unlock()
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

func (f *fakeStream) Retry() {
	f.mu.Lock()
	f.retries++
	f.mu.Unlock()
}

func (f *fakeStream) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return StateConnected
	}
	return StateDisconnected
}

func (f *fakeStream) Connected() bool { return f.State() == StateConnected }

func (f *fakeStream) Emit(ev domain.StreamEvent) {
	f.mu.Lock()
	f.emitted = append(f.emitted, ev)
	f.mu.Unlock()
}

func (f *fakeStream) Events() <-chan domain.StreamEvent { return f.events }

func (f *fakeStream) emittedEvents() []domain.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StreamEvent, len(f.emitted))
	copy(out, f.emitted)
	return out
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeStream) boundRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.bound))
	copy(out, f.bound)
	return out
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) record(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) kinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func newTestController(req *fakeRequest, stream *fakeStream, rec *noticeRecorder) *Controller {
	return NewController(ControllerConfig{
		Request: req,
		Stream:  stream,
		Sender:  "alice",
		Notify:  rec.record,
	})
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

//
// Room selection
//

func TestSelectRoom_LoadsHistoryAndBindsStream(t *testing.T) {
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{
				{ID: "m1", RoomID: roomID, Sender: "doc", Body: "hello"},
				{ID: "m2", RoomID: roomID, Sender: "alice", Body: "hi"},
			}, nil
		},
	}
	stream := newFakeStream()
	rec := &noticeRecorder{}
	c := newTestController(req, stream, rec)

	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	assert.Equal(t, []string{"m1", "m2"}, ids(c.Messages()))
	assert.Equal(t, "room-1", c.Room())
	assert.Equal(t, []string{"room-1"}, stream.bound)
	assert.Equal(t, 1, stream.closes, "previous stream torn down before rebinding")
	assert.Empty(t, rec.kinds())
}

func TestSelectRoom_HistoryFailureLeavesEmptyStoreButBindsStream(t *testing.T) {
	req := &fakeRequest{
		history: func(string) ([]domain.ChatMessage, error) {
			return nil, &RequestError{Kind: KindTimeout, Op: "history"}
		},
	}
	stream := newFakeStream()
	rec := &noticeRecorder{}
	c := newTestController(req, stream, rec)

	err := c.SelectRoom(context.Background(), "room-1")
	require.Error(t, err)

	assert.Zero(t, c.store.Len())
	assert.Equal(t, []string{"room-1"}, stream.bound, "live updates must still resume")
	assert.Equal(t, []NoticeKind{NoticeFetchFailed}, rec.kinds())
}

func TestSelectRoom_DiscardsMessagesFromPreviousRoom(t *testing.T) {
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			if roomID == "room-1" {
				return []domain.ChatMessage{{ID: "old", RoomID: "room-1", Sender: "doc", Body: "old"}}, nil
			}
			return []domain.ChatMessage{{ID: "new", RoomID: "room-2", Sender: "doc", Body: "new"}}, nil
		},
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})

	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))
	require.NoError(t, c.SelectRoom(context.Background(), "room-2"))

	assert.Equal(t, []string{"new"}, ids(c.Messages()))
}

func TestSelectRoom_RoomSwitchDiscardsInFlightHistory(t *testing.T) {
	// A slow history fetch for room-a completes only after the user has
	// already switched to room-b. The late result must not populate the
	// new room's store.
	release := make(chan struct{})
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			if roomID == "room-a" {
				<-release
				return []domain.ChatMessage{{ID: "stale-a", RoomID: "room-a", Sender: "doc", Body: "late"}}, nil
			}
			return []domain.ChatMessage{{ID: "b1", RoomID: "room-b", Sender: "doc", Body: "fresh"}}, nil
		},
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})

	done := make(chan error, 1)
	go func() { done <- c.SelectRoom(context.Background(), "room-a") }()
	require.Eventually(t, func() bool { return c.Room() == "room-a" }, time.Second, time.Millisecond)

	require.NoError(t, c.SelectRoom(context.Background(), "room-b"))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"b1"}, ids(c.Messages()))
	assert.False(t, c.store.Contains("stale-a"), "superseded fetch must not leak into the new room")
}

func TestSelectRoom_ConcurrentSwitchKeepsStreamOnNewestRoom(t *testing.T) {
	// While room-a's history fetch is still in flight, the user switches to
	// room-b. The superseded switch must not rebind the stream afterwards.
	release := make(chan struct{})
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			if roomID == "room-a" {
				<-release
			}
			return nil, nil
		},
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})

	done := make(chan error, 1)
	go func() { done <- c.SelectRoom(context.Background(), "room-a") }()
	require.Eventually(t, func() bool { return c.Room() == "room-a" }, time.Second, time.Millisecond)

	require.NoError(t, c.SelectRoom(context.Background(), "room-b"))
	close(release)
	require.NoError(t, <-done)

	bound := stream.boundRooms()
	require.NotEmpty(t, bound)
	assert.Equal(t, "room-b", bound[len(bound)-1], "stream must stay with the newest room")
	assert.NotContains(t, bound, "room-a")
}

//
// Sending
//

func TestSendMessage_OptimisticThenConfirmed(t *testing.T) {
	var optimisticID string
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	req.send = func(roomID, sender, body, _ string) (*domain.ChatMessage, error) {
		// The optimistic entry must already be visible while the request
		// is in flight.
		snap := c.Messages()
		if assert.Len(t, snap, 1) {
			optimisticID = snap[0].ID
			assert.Equal(t, DeliveryPending, snap[0].Delivery)
			assert.True(t, strings.HasPrefix(optimisticID, "local-"))
		}
		return &domain.ChatMessage{ID: "srv-9", RoomID: roomID, Sender: sender, Body: body}, nil
	}

	require.NoError(t, c.SendMessage(context.Background(), "hello doctor"))

	snap := c.Messages()
	require.Len(t, snap, 1)
	assert.Equal(t, "srv-9", snap[0].ID)
	assert.Equal(t, DeliveryConfirmed, snap[0].Delivery)
	assert.False(t, c.store.Contains(optimisticID))

	emitted := stream.emittedEvents()
	require.Len(t, emitted, 1)
	assert.Equal(t, domain.EventSend, emitted[0].Type)
	assert.Equal(t, "srv-9", emitted[0].Message.ID)
}

func TestSendMessage_StampsOptimisticIDAsIdempotencyKey(t *testing.T) {
	var gotKey, optID string
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	req.send = func(roomID, sender, body, key string) (*domain.ChatMessage, error) {
		gotKey = key
		if snap := c.Messages(); len(snap) == 1 {
			optID = snap[0].ID
		}
		return &domain.ChatMessage{ID: "srv-2", RoomID: roomID, Sender: sender, Body: body}, nil
	}

	require.NoError(t, c.SendMessage(context.Background(), "retry safe"))

	require.NotEmpty(t, gotKey)
	assert.Equal(t, optID, gotKey, "the optimistic id names the logical send")
	assert.True(t, strings.HasPrefix(gotKey, "local-"))
}

func TestSendMessage_RollbackOnFailure(t *testing.T) {
	req := &fakeRequest{
		send: func(string, string, string, string) (*domain.ChatMessage, error) {
			return nil, &RequestError{Kind: KindServer, Op: "send", Status: 500}
		},
	}
	stream := newFakeStream()
	rec := &noticeRecorder{}
	c := newTestController(req, stream, rec)
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	err := c.SendMessage(context.Background(), "will fail")
	require.Error(t, err)

	assert.Zero(t, c.store.Len(), "optimistic entry must be rolled back")
	assert.Equal(t, []NoticeKind{NoticeSendFailed}, rec.kinds())
	assert.Empty(t, stream.emittedEvents(), "nothing to fan out after a failed send")
}

func TestSendMessage_Validation(t *testing.T) {
	req := &fakeRequest{}
	stream := newFakeStream()
	rec := &noticeRecorder{}
	c := newTestController(req, stream, rec)

	assert.ErrorIs(t, c.SendMessage(context.Background(), "hi"), ErrNoRoom)

	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))
	assert.ErrorIs(t, c.SendMessage(context.Background(), "   \n "), ErrEmptyBody)

	assert.Zero(t, c.store.Len())
	assert.Equal(t, []NoticeKind{NoticeValidation, NoticeValidation}, rec.kinds())
}

func TestSendMessage_StreamEchoBeatsConfirmation(t *testing.T) {
	// The push event for our own send arrives before the HTTP response.
	// The store must end with exactly one copy of the message.
	release := make(chan struct{})
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	req.send = func(roomID, sender, body, _ string) (*domain.ChatMessage, error) {
		<-release
		return &domain.ChatMessage{ID: "srv-7", RoomID: roomID, Sender: sender, Body: body}, nil
	}

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "race me") }()

	// Wait for the optimistic entry, then deliver the echo.
	require.Eventually(t, func() bool { return c.store.Len() == 1 }, time.Second, time.Millisecond)
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "srv-7", RoomID: "room-1", Sender: "alice", Body: "race me"},
	})
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"srv-7"}, ids(c.Messages()), "exactly one copy regardless of arrival order")
}

func TestSendMessage_ConfirmationBeatsStreamEcho(t *testing.T) {
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	require.NoError(t, c.SendMessage(context.Background(), "hello"))
	// Now the echo arrives late; it must be ignored as a duplicate.
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "srv-1", RoomID: "room-1", Sender: "alice", Body: "hello"},
	})

	assert.Equal(t, []string{"srv-1"}, ids(c.Messages()))
}

func TestSendMessage_RoomSwitchDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	req := &fakeRequest{
		history: func(string) ([]domain.ChatMessage, error) { return nil, nil },
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	req.send = func(roomID, sender, body, _ string) (*domain.ChatMessage, error) {
		<-release
		return &domain.ChatMessage{ID: "stale", RoomID: roomID, Sender: sender, Body: body}, nil
	}

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "in flight") }()
	require.Eventually(t, func() bool { return c.store.Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.SelectRoom(context.Background(), "room-2"))
	close(release)
	require.NoError(t, <-done)

	assert.Zero(t, c.store.Len(), "stale confirmation must not reach the new room's store")
	assert.False(t, c.store.Contains("stale"))
}

//
// Deletion
//

func TestDeleteMessage_RemovesLocallyAndEmits(t *testing.T) {
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{{ID: "m1", RoomID: roomID, Sender: "alice", Body: "x"}}, nil
		},
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	require.NoError(t, c.DeleteMessage(context.Background(), "m1"))

	assert.Zero(t, c.store.Len())
	emitted := stream.emittedEvents()
	require.Len(t, emitted, 1)
	assert.Equal(t, domain.EventDelete, emitted[0].Type)
	assert.Equal(t, "m1", emitted[0].MessageID)
}

func TestDeleteMessage_FailureResyncsFromHistory(t *testing.T) {
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{
				{ID: "m1", RoomID: roomID, Sender: "alice", Body: "still here"},
				{ID: "m2", RoomID: roomID, Sender: "doc", Body: "other"},
			}, nil
		},
		delete: func(string, string) error {
			return &RequestError{Kind: KindNetwork, Op: "delete", Err: errors.New("conn refused")}
		},
	}
	stream := newFakeStream()
	rec := &noticeRecorder{}
	c := newTestController(req, stream, rec)
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))
	before := req.historyCalls()

	err := c.DeleteMessage(context.Background(), "m1")
	require.Error(t, err)

	// The failed delete is repaired by an authoritative refetch, not by
	// re-inserting a local guess.
	assert.Equal(t, before+1, req.historyCalls())
	assert.Equal(t, []string{"m1", "m2"}, ids(c.Messages()))
	assert.Equal(t, []NoticeKind{NoticeDeleteFailed}, rec.kinds())
	assert.Empty(t, stream.emittedEvents())
}

//
// Stream events
//

func TestHandleStreamEvent_DedupesAndValidates(t *testing.T) {
	req := &fakeRequest{
		history: func(roomID string) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{{ID: "m1", RoomID: roomID, Sender: "doc", Body: "hello"}}, nil
		},
	}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	// Duplicate of an existing id: ignored.
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "m1", RoomID: "room-1", Sender: "doc", Body: "hello"},
	})
	assert.Equal(t, 1, c.store.Len())

	// Missing required fields: dropped.
	c.handleStreamEvent(domain.StreamEvent{Type: domain.EventMessageReceived, RoomID: "room-1"})
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "m2", RoomID: "room-1"},
	})
	assert.Equal(t, 1, c.store.Len())

	// Different room: dropped.
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-9",
		Message: &domain.ChatMessage{ID: "m3", RoomID: "room-9", Sender: "doc", Body: "other"},
	})
	assert.False(t, c.store.Contains("m3"))

	// Valid new message: appended confirmed.
	c.handleStreamEvent(domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "m4", RoomID: "room-1", Sender: "doc", Body: "news"},
	})
	assert.Equal(t, []string{"m1", "m4"}, ids(c.Messages()))

	// Deletion push, twice: second is a harmless no-op.
	c.handleStreamEvent(domain.StreamEvent{Type: domain.EventMessageDeleted, RoomID: "room-1", MessageID: "m4"})
	c.handleStreamEvent(domain.StreamEvent{Type: domain.EventMessageDeleted, RoomID: "room-1", MessageID: "m4"})
	assert.Equal(t, []string{"m1"}, ids(c.Messages()))

	// Unknown type: dropped.
	c.handleStreamEvent(domain.StreamEvent{Type: "typing", RoomID: "room-1"})
	assert.Equal(t, 1, c.store.Len())
}

func TestRun_PumpsStreamEventsUntilCancelled(t *testing.T) {
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	stream.events <- domain.StreamEvent{
		Type:    domain.EventMessageReceived,
		RoomID:  "room-1",
		Message: &domain.ChatMessage{ID: "p1", RoomID: "room-1", Sender: "doc", Body: "pushed"},
	}
	require.Eventually(t, func() bool { return c.store.Contains("p1") }, time.Second, time.Millisecond)

	closesBefore := stream.closeCount()
	cancel()
	<-done
	assert.Greater(t, stream.closeCount(), closesBefore, "stream torn down on shutdown")
}

func TestReconnect_DelegatesToStreamRetry(t *testing.T) {
	stream := newFakeStream()
	c := newTestController(&fakeRequest{}, stream, &noticeRecorder{})
	c.Reconnect()
	assert.Equal(t, 1, stream.retries)
}

func TestOptimisticIDsAreUniquePerController(t *testing.T) {
	req := &fakeRequest{}
	stream := newFakeStream()
	c := newTestController(req, stream, &noticeRecorder{})
	require.NoError(t, c.SelectRoom(context.Background(), "room-1"))

	seen := map[string]bool{}
	req.send = func(roomID, sender, body, _ string) (*domain.ChatMessage, error) {
		id := c.Messages()[c.store.Len()-1].ID
		if seen[id] {
			t.Errorf("optimistic id %q reused", id)
		}
		seen[id] = true
		return &domain.ChatMessage{ID: "srv-" + body, RoomID: roomID, Sender: sender, Body: body}, nil
	}

	for _, b := range []string{"a", "b", "c"} {
		require.NoError(t, c.SendMessage(context.Background(), b))
	}
	assert.Len(t, seen, 3)
}
