package domain

import (
	"encoding/json"
	"testing"
)

func TestTableNames(t *testing.T) {
	if got := (Appointment{}).TableName(); got != "appointments" {
		t.Errorf("Appointment table = %q", got)
	}
	if got := (ChatMessage{}).TableName(); got != "chat_messages" {
		t.Errorf("ChatMessage table = %q", got)
	}
	if got := (Idempotency{}).TableName(); got != "idempotency" {
		t.Errorf("Idempotency table = %q", got)
	}
}

func TestStreamEventEnvelope(t *testing.T) {
	ev := StreamEvent{
		Type:   EventMessageReceived,
		RoomID: "r1",
		Message: &ChatMessage{
			ID: "m1", RoomID: "r1", Sender: "Maria", Body: "hello",
		},
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got StreamEvent
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != EventMessageReceived || got.Message == nil || got.Message.ID != "m1" {
		t.Fatalf("roundtrip = %+v", got)
	}
	// message_id is omitted when empty so delete frames stay minimal.
	if string(raw) == "" || got.MessageID != "" {
		t.Fatalf("raw = %s", raw)
	}
}

func TestDeleteEventOmitsMessage(t *testing.T) {
	raw, err := json.Marshal(StreamEvent{Type: EventMessageDeleted, RoomID: "r1", MessageID: "m1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	json.Unmarshal(raw, &m)
	if _, present := m["message"]; present {
		t.Fatalf("delete frame carries a message field: %s", raw)
	}
	if m["message_id"] != "m1" {
		t.Fatalf("frame = %s", raw)
	}
}
