package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careward/hospital-chat/internal/domain"
)

func TestRequestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/appointments/room-1/messages", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "200", r.URL.Query().Get("page_size"))
		assert.Equal(t, "alice", r.Header.Get("X-Sender"))
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []domain.ChatMessage{
				{ID: "m1", RoomID: "room-1", Sender: "doc", Body: "hello"},
				{ID: "m2", RoomID: "room-1", Sender: "alice", Body: "hi"},
			},
			"pagination": map[string]any{"page": 1, "has_next": false},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	c.Sender = "alice"

	msgs, err := c.History(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "hi", msgs[1].Body)
}

func TestRequestClient_HistoryWalksAllPages(t *testing.T) {
	// A conversation larger than one page must come back whole and in
	// order; the result backs authoritative store resets.
	const total = 450
	all := make([]domain.ChatMessage, total)
	for i := range all {
		all[i] = domain.ChatMessage{ID: fmt.Sprintf("m%03d", i), RoomID: "room-1", Sender: "doc", Body: "x"}
	}

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		require.Positive(t, page)
		require.Positive(t, size)

		lo := (page - 1) * size
		hi := lo + size
		if lo > total {
			lo = total
		}
		if hi > total {
			hi = total
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages":   all[lo:hi],
			"pagination": map[string]any{"page": page, "has_next": hi < total},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	msgs, err := c.History(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, total)
	assert.Equal(t, "m000", msgs[0].ID)
	assert.Equal(t, "m449", msgs[total-1].ID)
	assert.Equal(t, 3, requests)
}

func TestRequestClient_HistoryStopsOnEmptyPage(t *testing.T) {
	// A backend that claims has_next but serves no rows must not loop the
	// client forever.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"messages":   []domain.ChatMessage{},
			"pagination": map[string]any{"page": 1, "has_next": true},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	msgs, err := c.History(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRequestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "local-deadbeef-1", r.Header.Get("Idempotency-Key"))

		var req struct {
			Sender string `json:"sender"`
			Body   string `json:"body"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Sender)
		assert.Equal(t, "hello doctor", req.Body)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"message": domain.ChatMessage{ID: "srv-1", RoomID: "room-1", Sender: "alice", Body: "hello doctor"},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	m, err := c.Send(context.Background(), "room-1", "alice", "hello doctor", "local-deadbeef-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", m.ID)
}

func TestRequestClient_SendOmitsEmptyIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Idempotency-Key"]
		assert.False(t, present, "no key header without a key")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"message": domain.ChatMessage{ID: "srv-1", RoomID: "room-1", Sender: "alice", Body: "x"},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	_, err := c.Send(context.Background(), "room-1", "alice", "x", "")
	require.NoError(t, err)
}

func TestRequestClient_SendEmptyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	_, err := c.Send(context.Background(), "room-1", "alice", "x", "")
	re, ok := IsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, KindServer, re.Kind)
}

func TestRequestClient_DeleteTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	assert.NoError(t, c.Delete(context.Background(), "room-1", "gone-already"))
}

func TestRequestClient_ServerErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL, nil, 0)
	_, err := c.History(context.Background(), "room-1")
	re, ok := IsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, KindServer, re.Kind)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "history", re.Op)
}

func TestRequestClient_TimeoutKind(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewRequestClient(srv.URL, nil, 50*time.Millisecond)
	_, err := c.History(context.Background(), "room-1")
	re, ok := IsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, re.Kind)
}

func TestRequestClient_NetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := NewRequestClient(srv.URL, nil, time.Second)
	_, err := c.History(context.Background(), "room-1")
	re, ok := IsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, re.Kind)
}

func TestRequestClient_Appointments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appointments", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"appointments": []domain.Appointment{
				{ID: "a1", PatientName: "Maria", DoctorName: "Dr. Vasquez"},
			},
		})
	}))
	defer srv.Close()

	c := NewRequestClient(srv.URL+"/", nil, 0) // trailing slash is trimmed
	appts, err := c.Appointments(context.Background())
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "a1", appts[0].ID)
}
