// Package services defines the business logic for appointments and chat
// messages. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrRoomNotFound indicates that the requested appointment room does
	// not exist.
	ErrRoomNotFound = errors.New("appointment not found")

	// ErrEmptyBody is returned when a request to send a message contains an
	// empty body.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrBodyTooLong is returned when a message body exceeds the maximum
	// configured length limit.
	ErrBodyTooLong = errors.New("message body too long")

	// ErrEmptySender is returned when a send request carries no sender
	// display name.
	ErrEmptySender = errors.New("sender is empty")

	// ErrMessageNotFound indicates that the requested message does not
	// exist within the given room.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidSchedule is returned when an appointment is booked with a
	// zero or past-dated time.
	ErrInvalidSchedule = errors.New("invalid appointment time")

	// ErrEmptyParticipant is returned when an appointment is booked without
	// a patient or doctor name.
	ErrEmptyParticipant = errors.New("patient and doctor names are required")

	// ErrInvalidStatus is returned for status transitions outside the
	// scheduled/completed/cancelled lifecycle.
	ErrInvalidStatus = errors.New("invalid appointment status")
)
