// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages within an appointment:
//   - GET    /appointments/{id}/messages            (history, paginated, ETag)
//   - POST   /appointments/{id}/messages            (send, returns the confirmed row)
//   - DELETE /appointments/{id}/messages/{msgID}    (delete own message)
//   - GET    /appointments/{id}/messages/search     (rank history against a query)
//
// Handlers are transport-thin: validate and normalize inputs, delegate to
// MessageService, map service errors to the stable error envelope.
//
// Idempotency: when a client supplies an Idempotency-Key header and a
// previous successful send exists for (sender, appointment, key), the
// handler returns the recorded message and sets Idempotency-Replayed: true.
// Chat clients retry failed POSTs, so replays must not create duplicates.
//
// Deletion is idempotent at the HTTP level: deleting a message that is
// already gone answers 404, and clients treat that as success.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careward/hospital-chat/internal/domain"
	"github.com/careward/hospital-chat/internal/http/middleware"
	"github.com/careward/hospital-chat/internal/repo"
	"github.com/careward/hospital-chat/internal/search"
	"github.com/careward/hospital-chat/internal/services"
	"github.com/careward/hospital-chat/internal/utils"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message. Sender may
// alternatively arrive via the X-Sender header; the body field wins when
// both are present.
type SendMessageRequest struct {
	// Sender is the display name stamped on the message.
	Sender string `json:"sender" example:"Maria Papadaki"`
	// Body is the message text. It must be non-empty after trimming.
	Body string `json:"body" binding:"required,min=1" example:"Is the follow-up still on Thursday?"`
}

// SendMessageResponse is the JSON envelope for a newly persisted message.
// The id inside is the authoritative server id the client substitutes for
// its optimistic placeholder.
type SendMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

// SearchMessagesResponse contains ranked matches for a history search.
type SearchMessagesResponse struct {
	Matches []search.Match `json:"matches"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeBody normalizes message text: CRLF/CR become LF, runs of blank
// lines collapse to one, surrounding whitespace is trimmed.
func sanitizeBody(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// senderOf resolves the sender identity for a request: the JSON field when
// provided, else the X-Sender header.
func senderOf(c *gin.Context, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	return middleware.SenderFrom(c)
}

// maxBodyRunes inspects the concrete MessageService for its configured
// length cap, falling back to a conservative default.
func maxBodyRunes(msgSvc MessageService) int {
	const fallback = 2000
	if ms, ok := msgSvc.(*services.MessageService); ok && ms.MaxBodyRunes > 0 {
		return ms.MaxBodyRunes
	}
	return fallback
}

// serviceDB exposes the concrete service's DB handle for ETag and
// idempotency lookups. Nil when the handler runs against a fake.
func serviceDB(msgSvc MessageService) *gorm.DB {
	if ms, ok := msgSvc.(*services.MessageService); ok {
		return ms.DB
	}
	return nil
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Persists a message in the appointment's conversation and returns
// @Description the confirmed row with its server-assigned id. Supports idempotent
// @Description retries via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-Sender         header  string  false "Sender display name (fallback for body.sender)"  example(Maria Papadaki)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Appointment ID (UUID)"  format(uuid)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.SendMessageResponse  "Confirmed message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse        "Appointment not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /appointments/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	body := sanitizeBody(req.Body)
	maxRunes := maxBodyRunes(h.msgSvc)
	if body == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	if maxRunes > 0 && utf8.RuneCountInString(body) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("body too long: max %d runes", maxRunes))
		return
	}

	sender := senderOf(c, req.Sender)
	if sender == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender required")
		return
	}

	// Idempotency (replay path): serve the previously persisted message.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if db := serviceDB(h.msgSvc); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, sender, roomID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(db, roomID, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, SendMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	m, err := h.msgSvc.Send(ctx, roomID, sender, body)
	if err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		case services.ErrEmptyBody:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		case services.ErrEmptySender:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sender required")
		case services.ErrBodyTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("body too long: max %d runes", maxRunes))
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" {
		if db := serviceDB(h.msgSvc); db != nil {
			_, _ = repo.CreateIdempotency(ctx, db, sender, roomID, idemKey, m.ID, http.StatusCreated, h.IdempotencyTTL)
		}
	}

	ok(c, http.StatusCreated, SendMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in an appointment
// @Description Returns the paginated, chronologically ordered conversation
// @Description history. Supports conditional requests via ETag/If-None-Match.
// @Tags        Messages
// @Produce     json
// @Param       id         path   string  true  "Appointment ID (UUID)"  format(uuid)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Appointment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}

	// ETag pre-check, best effort.
	if db := serviceDB(h.msgSvc); db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, roomID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, roomID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), 50)
	page, pageSize = utils.ClampPage(page, pageSize, 50, 200)

	items, total, err := h.msgSvc.HistoryPage(ctx, roomID, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Soft-deletes a message the caller sent. Answers 404 when the
// @Description message does not exist or belongs to someone else; clients
// @Description treat 404 as an already-completed delete.
// @Tags        Messages
// @Produce     json
// @Param       X-Sender  header  string  true  "Sender display name (must match the message)"
// @Param       id        path    string  true  "Appointment ID (UUID)"  format(uuid)
// @Param       msgID     path    string  true  "Message ID (UUID)"      format(uuid)
// @Success     204  "Deleted"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/{id}/messages/{msgID} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	roomID := c.Param("id")
	msgID := c.Param("msgID")

	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}
	if strings.TrimSpace(msgID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id required")
		return
	}

	sender := middleware.SenderFrom(c)

	if err := h.msgSvc.Delete(c.Request.Context(), roomID, msgID, sender); err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		}
		return
	}
	noContent(c)
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search an appointment's conversation
// @Description Ranks the room's message history against a free-text query.
// @Tags        Messages
// @Produce     json
// @Param       id  path   string  true   "Appointment ID (UUID)"  format(uuid)
// @Param       q   query  string  true   "Search query"
// @Param       k   query  int     false  "Maximum results"  minimum(1) default(10)
// @Success     200  {object}  handlers.SearchMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Appointment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/{id}/messages/search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 10)
	if k < 1 {
		k = 10
	}

	history, err := h.msgSvc.History(ctx, roomID)
	if err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	matches := h.ranker.Rank(history, query, k)
	if matches == nil {
		matches = []search.Match{}
	}
	ok(c, http.StatusOK, SearchMessagesResponse{Matches: matches})
}
