// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. The constants below give clients a stable, machine-readable
// taxonomy that supplements human-readable messages; handlers pick the most
// specific matching code and pass it to fail() with the HTTP status.
//
// Codes are lowercase snake_case. Generic codes mirror common HTTP status
// semantics; domain-specific codes cover business failures that a status
// alone cannot convey.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeSendFailed       = "send_failed"
	ErrCodeDeleteFailed     = "delete_failed"
	ErrCodeBookFailed       = "book_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUpgradeFailed    = "upgrade_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
