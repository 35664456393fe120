// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Appointment model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an appointment is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careward/hospital-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateAppointment inserts a new Appointment row. The appointment ID is a
// randomly generated UUID (string) and also serves as the chat room id.
//
// On success, it returns the persisted Appointment. On failure, it returns
// a DB error.
func CreateAppointment(ctx context.Context, db *gorm.DB, patientName, doctorName string, scheduledAt time.Time) (*domain.Appointment, error) {
	a := &domain.Appointment{
		ID:          uuid.NewString(),
		PatientName: patientName,
		DoctorName:  doctorName,
		ScheduledAt: scheduledAt,
		Status:      "scheduled",
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// ListAppointments returns all appointments ordered by scheduled time
// ascending (soonest first). It returns an empty slice when none exist.
func ListAppointments(ctx context.Context, db *gorm.DB) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := db.WithContext(ctx).
		Order("scheduled_at asc").
		Find(&out).Error
	return out, err
}

// GetAppointment fetches a single appointment by ID, or ErrNotFound.
func GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAppointments returns the total number of appointments, for
// pagination metadata. On DB error, it returns the error.
func CountAppointments(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Count(&total).Error
	return total, err
}

// ListAppointmentsPage returns a paginated slice of appointments ordered by
// scheduled time ascending. Use CountAppointments to obtain the total.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListAppointmentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := db.WithContext(ctx).
		Order("scheduled_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateAppointmentStatus transitions an appointment to the given status,
// returning ErrNotFound if the row does not exist.
func UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
