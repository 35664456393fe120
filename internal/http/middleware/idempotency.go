// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for message sends. Chat clients
// retry failed POSTs; an Idempotency-Key header lets those retries be
// deduplicated server-side. The middleware validates the header, stashes
// the normalized key in the request context, and optionally performs a
// lookup so downstream components can:
//   - read the key (GetIdempotencyKey)
//   - detect replays (IsReplay)
//   - bypass rate limiting when a replay is served
//
// Persistence stays decoupled behind the narrow IdempotencyLookup type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header clients use to convey an
// idempotency key for message sends. The value must be stable across
// retries of the same semantic send.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderSender is the request header carrying the caller's display name.
// There is no account system; the chat identifies participants by the name
// they present, the same name stamped on their messages.
const HeaderSender = "X-Sender"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// SenderFrom returns the declared sender identity, trimmed. Empty when the
// client did not identify itself.
func SenderFrom(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderSender))
}

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates
// presence. Handlers should prefer this over reading the header directly.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware detected that this request would
// replay a previously completed send for (sender, room, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation for IdempotencyValidator.
// TTL enforcement belongs inside the provided lookup function, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a successful, still-valid result exists
// for (sender, roomID, key) at the given time. Return exists=true when the
// prior response can be replayed; return an error only for lookup failures,
// which must not block normal processing.
type IdempotencyLookup func(ctx context.Context, sender, roomID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes it in the request context, and checks for a prior completed send
// via the supplied lookup. On a detected replay it sets the replay and
// rate-bypass flags; the handler remains in control of serving the stored
// result. An absent header makes the middleware a no-op; an invalid header
// fails the request with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			sender := SenderFrom(c)
			roomID := c.Param("id") // POST /appointments/:id/messages
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), sender, roomID, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
