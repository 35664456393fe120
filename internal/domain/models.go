// Package domain defines the persistence models for appointments and their
// chat messages. These types are mapped with GORM and form the core data
// layer of the hospital messaging service.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Appointment represents a scheduled consultation between a patient and a
// doctor. Each appointment doubles as a chat room: its ID is the room
// identifier used by both the REST history endpoints and the websocket
// stream.
//
// Fields:
//   - ID: stable UUID primary key (char(36)); also the room id.
//   - PatientName / DoctorName: denormalized display names captured at
//     booking time (not foreign keys; the upstream admin system owns the
//     canonical records).
//   - ScheduledAt: when the consultation takes place.
//   - Status: scheduled | completed | cancelled (enforced by DB constraint).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Appointment struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	PatientName string         `json:"patient_name" gorm:"type:varchar(128);not null;index:idx_appt_patient"`
	DoctorName  string         `json:"doctor_name"  gorm:"type:varchar(128);not null;index:idx_appt_doctor"`
	ScheduledAt time.Time      `json:"scheduled_at" gorm:"not null"`
	Status      string         `json:"status"       gorm:"type:varchar(16);not null;default:'scheduled';check:status IN ('scheduled','completed','cancelled')"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }

// ChatMessage represents a single chat line within an appointment's
// conversation. The server-assigned UUID is the authoritative message
// identity; clients may show a temporary local id until the row exists.
//
// Fields:
//   - ID: UUID primary key (char(36)), assigned server-side.
//   - RoomID: foreign key to the owning appointment (indexed).
//   - Sender: display name of the author at time of send (denormalized).
//   - Body: full text content of the message.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; deleted messages drop out of history
//     but the row is retained for audit.
//   - Appointment: FK association, ensures cascade delete/update.
type ChatMessage struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	RoomID    string         `json:"room_id"    gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	Sender    string         `json:"sender"     gorm:"type:varchar(128);not null"`
	Body      string         `json:"body"       gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Appointment is the parent room. Messages are cascade-deleted if their
	// appointment is removed.
	Appointment Appointment `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
