// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careward/hospital-chat/internal/domain"
)

// CreateMessage inserts a new message row with a server-assigned UUID.
func CreateMessage(db *gorm.DB, roomID, sender, body string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Sender:    sender,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.Where("room_id = ?", roomID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, roomID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE room_id = ? AND deleted_at IS NULL", roomID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID scoped to its room.
func GetMessage(db *gorm.DB, roomID, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.Where("id = ? AND room_id = ?", id, roomID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage soft-deletes a message within a room. Deleting an already
// deleted or unknown id returns ErrNotFound so the handler can answer 404;
// the client treats that as success (the row is gone either way).
func DeleteMessage(ctx context.Context, db *gorm.DB, roomID, id string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND room_id = ?", id, roomID).
		Delete(&domain.ChatMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
