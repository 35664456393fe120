// Notices: the user-visible failure signals raised by the controller.
// Request-channel failures always produce a notice; stream-channel failures
// never do (they only move the connection state).
package chatsync

// NoticeKind classifies a controller notice.
type NoticeKind string

const (
	// NoticeValidation flags a locally rejected action (empty body, no
	// appointment selected). No network call was made.
	NoticeValidation NoticeKind = "validation"
	// NoticeSendFailed flags a rejected send. The optimistic entry has been
	// rolled back; the composed text should be kept for retry.
	NoticeSendFailed NoticeKind = "send_failed"
	// NoticeDeleteFailed flags a rejected delete. The store has been
	// resynchronized from an authoritative history refetch.
	NoticeDeleteFailed NoticeKind = "delete_failed"
	// NoticeFetchFailed flags a failed history load; the store is empty.
	NoticeFetchFailed NoticeKind = "fetch_failed"
)

// Notice is a transient, user-visible failure report.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}
