// Package chatsync implements the client side of the appointment messaging
// system: an in-memory message store for the active room, a request channel
// for durable reads/writes over HTTP, a reconnecting websocket stream
// channel for live updates, and the reconciliation controller that keeps the
// three consistent.
//
// This file defines the error taxonomy for the request channel. Stream
// channel failures are deliberately not errors; they surface only through
// the connection state (see stream.go).
package chatsync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a request-channel failure. The controller reacts the
// same way to all three kinds (rollback for sends, authoritative refetch for
// deletes); the kind exists so notices and logs can name the cause.
type ErrorKind string

const (
	// KindNetwork covers connectivity failures: refused connections, DNS
	// errors, resets mid-response.
	KindNetwork ErrorKind = "network"
	// KindTimeout covers calls that exceeded the per-request deadline.
	KindTimeout ErrorKind = "timeout"
	// KindServer covers non-success HTTP statuses from a reachable backend.
	KindServer ErrorKind = "server"
)

// RequestError is the typed failure returned by all request-channel calls.
type RequestError struct {
	Kind   ErrorKind
	Op     string // history | send | delete
	Status int    // HTTP status for KindServer, 0 otherwise
	Err    error  // underlying transport error, may be nil for KindServer
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

// Unwrap exposes the underlying transport error for errors.Is/As chains.
func (e *RequestError) Unwrap() error { return e.Err }

// Validation failures never reach the network; the controller returns these
// directly and raises a validation notice.
var (
	// ErrNoRoom is returned when an operation is attempted with no
	// appointment selected.
	ErrNoRoom = errors.New("no appointment selected")

	// ErrEmptyBody is returned when a send is attempted with a blank body.
	ErrEmptyBody = errors.New("message body is empty")
)

// IsRequestError reports whether err is (or wraps) a RequestError, returning
// it when so.
func IsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
