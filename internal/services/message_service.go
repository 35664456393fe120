// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of chat messages within an appointment room. It
// validates inputs, checks that the room exists, persists sends, and
// soft-deletes messages. The service is the single durable-write path; the
// websocket hub only fans committed state out to connected viewers.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// include room/sender identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/careward/hospital-chat/internal/domain"
	"github.com/careward/hospital-chat/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService coordinates message persistence for appointment rooms.
type MessageService struct {
	DB *gorm.DB

	// MaxBodyRunes caps accepted message length; 0 disables the check.
	MaxBodyRunes int
}

// Send validates the sender and body, verifies the room, and persists a new
// message. The returned message carries the authoritative server id the
// client substitutes for its optimistic placeholder.
func (s *MessageService) Send(ctx context.Context, roomID, sender, body string) (*domain.ChatMessage, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("sender", sender),
		),
	)
	defer span.End()

	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil, ErrEmptySender
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return nil, ErrBodyTooLong
	}

	if _, err := repo.GetAppointment(ctx, s.DB, roomID); err != nil {
		return nil, ErrRoomNotFound
	}

	var msg *domain.ChatMessage
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, roomID, sender, body)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the full ordered history for a room, verifying the room
// exists first so unknown rooms answer not-found rather than an empty list.
func (s *MessageService) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	if _, err := repo.GetAppointment(ctx, s.DB, roomID); err != nil {
		return nil, ErrRoomNotFound
	}
	return repo.ListMessages(s.DB.WithContext(ctx), roomID, 0)
}

// HistoryPage returns paginated messages for a room plus the total count.
func (s *MessageService) HistoryPage(ctx context.Context, roomID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "HistoryPage",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetAppointment(ctx, s.DB, roomID); err != nil {
		return nil, 0, ErrRoomNotFound
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), roomID, offset, pageSize)
	return items, total, err
}

// Delete soft-deletes a message within a room. Only the original sender may
// delete their own message; the handler passes the authenticated display
// name. Deleting a message that is already gone returns ErrMessageNotFound.
func (s *MessageService) Delete(ctx context.Context, roomID, id, sender string) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("message.id", id),
		),
	)
	defer span.End()

	m, err := repo.GetMessage(s.DB.WithContext(ctx), roomID, id)
	if err != nil {
		return ErrMessageNotFound
	}
	if sender != "" && m.Sender != sender {
		return ErrMessageNotFound // do not reveal other users' message ids
	}
	if err := repo.DeleteMessage(ctx, s.DB, roomID, id); err != nil {
		if repo.IsNotFound(err) {
			return ErrMessageNotFound
		}
		return err
	}
	return nil
}
