// Package services – AppointmentService
//
// This file implements the AppointmentService, which manages the lifecycle
// of appointment rooms. It validates and normalizes participant names,
// enforces scheduling rules, and coordinates repository operations for
// booking and listing (with pagination) appointments.
//
// Service-level errors (e.g., ErrRoomNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/careward/hospital-chat/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AppointmentRepo defines the repository contract required by
// AppointmentService. Implementations are responsible for persistence of
// appointment aggregates.
type AppointmentRepo interface {
	// CreateAppointment inserts a new appointment row.
	CreateAppointment(ctx context.Context, db *gorm.DB, patientName, doctorName string, scheduledAt time.Time) (*domain.Appointment, error)

	// ListAppointments returns all appointments (non-paginated).
	ListAppointments(ctx context.Context, db *gorm.DB) ([]domain.Appointment, error)

	// GetAppointment fetches an appointment by ID.
	GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error)

	// CountAppointments returns the total number of appointments.
	CountAppointments(ctx context.Context, db *gorm.DB) (int64, error)

	// ListAppointmentsPage returns a page of appointments.
	ListAppointmentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Appointment, error)

	// UpdateAppointmentStatus transitions an appointment to a new status.
	UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error
}

// AppointmentService provides appointment-level operations such as booking
// and listing rooms. It normalizes display names and enforces basic
// scheduling constraints.
type AppointmentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the appointment repository used by this service.
	Repo AppointmentRepo

	// NameMaxLen caps stored display names by rune length.
	NameMaxLen int
	// NameLocale selects the casing rules applied when normalizing names.
	NameLocale language.Tag
}

// NewAppointmentService constructs an AppointmentService with sane defaults
// for name handling.
func NewAppointmentService(db *gorm.DB, r AppointmentRepo) *AppointmentService {
	return &AppointmentService{
		DB:         db,
		Repo:       r,
		NameMaxLen: 128,
		NameLocale: language.English,
	}
}

// Book inserts a new appointment between patientName and doctorName at the
// given time. Names are normalized and title-cased; blank participants or a
// zero schedule are rejected locally.
func (s *AppointmentService) Book(ctx context.Context, patientName, doctorName string, scheduledAt time.Time) (*domain.Appointment, error) {
	patientName = s.normalizeName(patientName)
	doctorName = s.normalizeName(doctorName)
	if patientName == "" || doctorName == "" {
		return nil, ErrEmptyParticipant
	}
	if scheduledAt.IsZero() {
		return nil, ErrInvalidSchedule
	}
	return s.Repo.CreateAppointment(ctx, s.DB, patientName, doctorName, scheduledAt.UTC())
}

// List returns all appointments (non-paginated).
// Prefer ListPage for scalability on large datasets.
func (s *AppointmentService) List(ctx context.Context) ([]domain.Appointment, error) {
	return s.Repo.ListAppointments(ctx, s.DB)
}

// ListPage returns a page of appointments (paginated). It applies defaults
// for invalid page/pageSize and returns the total count.
func (s *AppointmentService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Appointment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountAppointments(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Appointment{}, 0, nil
	}

	items, err := s.Repo.ListAppointmentsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Get fetches a single appointment by id, mapping repository misses to
// ErrRoomNotFound.
func (s *AppointmentService) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	a, err := s.Repo.GetAppointment(ctx, s.DB, id)
	if err != nil {
		return nil, ErrRoomNotFound
	}
	return a, nil
}

// UpdateStatus transitions an appointment between lifecycle states.
// Unknown statuses are rejected locally; a missing row maps to
// ErrRoomNotFound.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id, status string) error {
	switch status {
	case "scheduled", "completed", "cancelled":
	default:
		return ErrInvalidStatus
	}
	if err := s.Repo.UpdateAppointmentStatus(ctx, s.DB, id, status); err != nil {
		return ErrRoomNotFound
	}
	return nil
}

// normalizeName collapses whitespace, title-cases the result using the
// configured locale, and clips it to NameMaxLen runes.
func (s *AppointmentService) normalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	name = cases.Title(s.nameLocale()).String(name)
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:s.NameMaxLen]))
	}
	return name
}

func (s *AppointmentService) nameLocale() language.Tag {
	if s.NameLocale == (language.Tag{}) {
		return language.English
	}
	return s.NameLocale
}
