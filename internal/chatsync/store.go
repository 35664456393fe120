// Store: the in-memory, ordered message collection for the active room.
package chatsync

import (
	"sync"

	"github.com/careward/hospital-chat/internal/domain"
)

// DeliveryState tags a stored message with its position in the optimistic
// send lifecycle. Rolled-back entries never remain in the store; the
// constant exists so notices and logs can name the terminal state.
type DeliveryState string

const (
	// DeliveryPending marks a locally appended message awaiting server
	// confirmation. Its id is a client-generated placeholder.
	DeliveryPending DeliveryState = "pending"
	// DeliveryConfirmed marks a message whose id is server-authoritative.
	DeliveryConfirmed DeliveryState = "confirmed"
	// DeliveryRolledBack marks a send the server rejected. The entry is
	// removed from the store at the moment it enters this state.
	DeliveryRolledBack DeliveryState = "rolled_back"
)

// Message is a chat line as held client-side: the wire-level message plus
// its delivery state.
type Message struct {
	domain.ChatMessage
	Delivery DeliveryState
}

// Store holds the ordered message sequence for the currently selected
// appointment. The reconciliation controller is the only mutator; the mutex
// exists so UI code may take read snapshots from other goroutines.
//
// The store performs no deduplication itself; idempotent-merge decisions
// belong to the controller, which consults Contains before appending.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Append adds m to the end of the sequence.
func (s *Store) Append(m Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
}

// Replace substitutes the entry whose id matches id with m, preserving its
// position. It reports whether a substitution happened.
func (s *Store) Replace(id string, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i] = m
			return true
		}
	}
	return false
}

// Remove deletes the entry with the given id. Removing an absent id is a
// no-op, which makes duplicate delete notifications harmless.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return
		}
	}
}

// Reset empties the store. Called on every room switch so messages from the
// previous appointment never leak into the new view.
func (s *Store) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// ResetTo empties the store and repopulates it from history in one step,
// used when a failed delete forces an authoritative refetch.
func (s *Store) ResetTo(history []domain.ChatMessage) {
	s.mu.Lock()
	s.msgs = make([]Message, 0, len(history))
	for _, m := range history {
		s.msgs = append(s.msgs, Message{ChatMessage: m, Delivery: DeliveryConfirmed})
	}
	s.mu.Unlock()
}

// Contains reports whether an entry with the given id is present.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Snapshot returns a copy of the current sequence in order. The copy is safe
// to render while the controller keeps mutating the store.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}
