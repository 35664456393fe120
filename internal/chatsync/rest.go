// Request channel: one-shot HTTP operations against the messaging backend.
// This is the durable path for history reads, sends, and deletes. Calls carry
// a bounded per-request deadline and are never retried here; retry and
// rollback policy belongs to the controller.
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/careward/hospital-chat/internal/domain"
)

// DefaultRequestTimeout bounds every request-channel call unless overridden.
const DefaultRequestTimeout = 10 * time.Second

// RequestClient talks to the backend's REST API for a conversation view.
// The zero value is not usable; construct with NewRequestClient.
type RequestClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration

	// Sender, when set, is stamped on every call as the X-Sender header.
	// The backend uses it for rate limiting and delete ownership.
	Sender string
}

// NewRequestClient returns a client rooted at baseURL (e.g.
// "http://localhost:8080/api/v1"). A nil httpClient falls back to a fresh
// http.Client; timeout <= 0 falls back to DefaultRequestTimeout.
func NewRequestClient(baseURL string, httpClient *http.Client, timeout time.Duration) *RequestClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RequestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
	}
}

// historyPageSize is the page_size requested on history fetches. It matches
// the backend's maximum so full fetches take the fewest round trips.
const historyPageSize = 200

// historyResponse mirrors the backend's history envelope.
type historyResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination struct {
		Page    int  `json:"page"`
		HasNext bool `json:"has_next"`
	} `json:"pagination"`
}

// appointmentsResponse mirrors the backend's appointment list envelope.
type appointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
}

// sendRequest is the JSON payload for POSTing a message.
type sendRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

// sendResponse mirrors the backend's send envelope.
type sendResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// Appointments lists the rooms available to join.
func (c *RequestClient) Appointments(ctx context.Context) ([]domain.Appointment, error) {
	var out appointmentsResponse
	if err := c.do(ctx, "appointments", http.MethodGet,
		fmt.Sprintf("%s/appointments", c.baseURL), nil, &out); err != nil {
		return nil, err
	}
	return out.Appointments, nil
}

// History fetches the full ordered message history for roomID, walking the
// backend's pages until the last one. The result is authoritative: callers
// reset their local view to it.
func (c *RequestClient) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	var all []domain.ChatMessage
	for page := 1; ; page++ {
		var out historyResponse
		url := fmt.Sprintf("%s/appointments/%s/messages?page=%d&page_size=%d",
			c.baseURL, roomID, page, historyPageSize)
		if err := c.do(ctx, "history", http.MethodGet, url, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Messages...)
		// The empty-page guard stops the walk if a backend ever reports
		// has_next without serving further rows.
		if !out.Pagination.HasNext || len(out.Messages) == 0 {
			return all, nil
		}
	}
}

// Send persists a message and returns the server-confirmed row, including
// its authoritative id. A non-empty key is stamped as the Idempotency-Key
// header so user-level retries of the same send replay the stored row
// instead of duplicating it.
func (c *RequestClient) Send(ctx context.Context, roomID, sender, body, key string) (*domain.ChatMessage, error) {
	var hdrs []header
	if key != "" {
		hdrs = append(hdrs, header{"Idempotency-Key", key})
	}
	var out sendResponse
	err := c.do(ctx, "send", http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/messages", c.baseURL, roomID),
		sendRequest{Sender: sender, Body: body}, &out, hdrs...)
	if err != nil {
		return nil, err
	}
	if out.Message == nil {
		return nil, &RequestError{Kind: KindServer, Op: "send", Err: errors.New("empty message in response")}
	}
	return out.Message, nil
}

// Delete removes a message. A 404 from the backend is treated as success:
// the row is gone either way, and deletes are idempotent end to end.
func (c *RequestClient) Delete(ctx context.Context, roomID, id string) error {
	err := c.do(ctx, "delete", http.MethodDelete,
		fmt.Sprintf("%s/appointments/%s/messages/%s", c.baseURL, roomID, id), nil, nil)
	if re, ok := IsRequestError(err); ok && re.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// header is an extra request header applied by do.
type header struct {
	name  string
	value string
}

// do issues one HTTP call with the configured deadline and decodes a JSON
// response into out (when non-nil). Failures are classified into the
// package's RequestError taxonomy.
func (c *RequestClient) do(ctx context.Context, op, method, url string, in, out any, hdrs ...header) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Kind: KindNetwork, Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &RequestError{Kind: KindNetwork, Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Sender != "" {
		req.Header.Set("X-Sender", c.Sender)
	}
	for _, h := range hdrs {
		req.Header.Set(h.name, h.value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Kind: classifyTransport(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Kind: KindServer, Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Kind: KindServer, Op: op, Err: err}
	}
	return nil
}

// classifyTransport splits transport errors into timeout vs network kinds.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
