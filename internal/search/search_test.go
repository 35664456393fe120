package search

import (
	"testing"

	"github.com/careward/hospital-chat/internal/domain"
)

func msgs(bodies ...string) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(bodies))
	for i, b := range bodies {
		out[i] = domain.ChatMessage{ID: string(rune('a' + i)), RoomID: "r1", Sender: "alice", Body: b}
	}
	return out
}

func TestRank_OrdersByScore(t *testing.T) {
	r := NewRanker()
	history := msgs(
		"the blood test results arrived today",
		"see you on thursday",
		"blood test",
	)

	got := r.Rank(history, "blood test", 10)
	if len(got) != 2 {
		t.Fatalf("matches = %d; want 2", len(got))
	}
	// Exact token match scores 1.0 and ranks first.
	if got[0].Message.Body != "blood test" || got[0].Score != 1.0 {
		t.Fatalf("top match = %q score %v", got[0].Message.Body, got[0].Score)
	}
	if got[1].Score >= got[0].Score {
		t.Fatalf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestRank_CaseInsensitive(t *testing.T) {
	r := NewRanker()
	got := r.Rank(msgs("BLOOD Test Results"), "blood test results", 10)
	if len(got) != 1 || got[0].Score != 1.0 {
		t.Fatalf("got = %+v", got)
	}
}

func TestRank_TiesBreakOnLengthThenID(t *testing.T) {
	r := NewRanker()
	history := []domain.ChatMessage{
		{ID: "b", Body: "fever chills"},
		{ID: "a", Body: "fever chills"},
		{ID: "c", Body: "fever chills again"}, // lower score, longer
	}

	got := r.Rank(history, "fever chills", 10)
	if len(got) != 3 {
		t.Fatalf("matches = %d", len(got))
	}
	if got[0].Message.ID != "a" || got[1].Message.ID != "b" {
		t.Fatalf("tie order = %s, %s; want a, b", got[0].Message.ID, got[1].Message.ID)
	}
	if got[2].Message.ID != "c" {
		t.Fatalf("last = %s; want c", got[2].Message.ID)
	}
}

func TestRank_RespectsK(t *testing.T) {
	r := NewRanker()
	history := msgs("pain", "pain pain", "pain relief", "no match here at all")

	got := r.Rank(history, "pain", 2)
	if len(got) != 2 {
		t.Fatalf("k=2 returned %d", len(got))
	}

	// k <= 0 falls back to 10.
	got = r.Rank(history, "pain", 0)
	if len(got) != 3 {
		t.Fatalf("k=0 returned %d; want all 3 hits", len(got))
	}
}

func TestRank_EmptyInputs(t *testing.T) {
	r := NewRanker()
	if got := r.Rank(nil, "query", 10); got != nil {
		t.Fatalf("nil history = %+v", got)
	}
	if got := r.Rank(msgs("hello"), "   ", 10); got != nil {
		t.Fatalf("blank query = %+v", got)
	}
	if got := r.Rank(msgs("hello"), "!!! ...", 10); got != nil {
		t.Fatalf("token-free query = %+v", got)
	}
	if got := r.Rank(msgs("hello"), "unrelated", 10); got != nil {
		t.Fatalf("no hits = %+v", got)
	}
}

func TestRank_Stopwords(t *testing.T) {
	r := NewRanker(WithStopwords([]string{"the", "is", "on"}))
	history := msgs("the appointment is on thursday")

	got := r.Rank(history, "the thursday", 10)
	if len(got) != 1 {
		t.Fatalf("matches = %d", len(got))
	}
	// With stop words removed both sides reduce to content tokens only.
	if got[0].Score != 0.5 {
		t.Fatalf("score = %v; want 0.5 (thursday of {appointment, thursday})", got[0].Score)
	}
}

func TestTokenize_Unicode(t *testing.T) {
	toks := tokenize("Καλημέρα γιατρέ, πονάει το χέρι", nil)
	if _, ok := toks["καλημέρα"]; !ok {
		t.Fatalf("tokens = %v; want greek words lowercased", toks)
	}
}
