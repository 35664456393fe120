// Appointment HTTP handlers.
//
// This file exposes REST endpoints for appointment rooms:
//   - POST /appointments              (book)
//   - GET  /appointments              (list, paginated)
//   - GET  /appointments/{id}         (fetch one)
//   - PUT  /appointments/{id}/status  (complete / cancel)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careward/hospital-chat/internal/domain"
	"github.com/careward/hospital-chat/internal/search"
	"github.com/careward/hospital-chat/internal/services"
	"github.com/careward/hospital-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// AppointmentService defines appointment lifecycle operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context for cancellation and timeouts.
type AppointmentService interface {
	// Book creates a new appointment room between a patient and a doctor.
	Book(ctx context.Context, patientName, doctorName string, scheduledAt time.Time) (*domain.Appointment, error)
	// ListPage returns a page of appointments and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Appointment, int64, error)
	// Get fetches a single appointment by id.
	Get(ctx context.Context, id string) (*domain.Appointment, error)
	// UpdateStatus transitions an appointment to a new lifecycle status.
	UpdateStatus(ctx context.Context, id, status string) error
}

// MessageService defines message operations consumed by HTTP handlers.
type MessageService interface {
	// Send persists a message in a room and returns the confirmed row.
	Send(ctx context.Context, roomID, sender, body string) (*domain.ChatMessage, error)
	// History returns the full ordered history of a room.
	History(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// HistoryPage returns a page of messages within a room and the total count.
	HistoryPage(ctx context.Context, roomID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
	// Delete soft-deletes a message owned by sender within a room.
	Delete(ctx context.Context, roomID, id, sender string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for appointments and messages. It
// depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	apptSvc AppointmentService
	msgSvc  MessageService
	ranker  search.Ranker

	// IdempotencyTTL is how long a recorded send can be replayed.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(apptSvc AppointmentService, msgSvc MessageService, ranker search.Ranker) *Handlers {
	return &Handlers{
		apptSvc:        apptSvc,
		msgSvc:         msgSvc,
		ranker:         ranker,
		IdempotencyTTL: 24 * time.Hour,
	}
}

//
// DTOs
//

// BookAppointmentRequest is the JSON payload for booking an appointment.
type BookAppointmentRequest struct {
	PatientName string    `json:"patient_name" binding:"required,min=1,max=255" example:"Maria Papadaki"`
	DoctorName  string    `json:"doctor_name" binding:"required,min=1,max=255" example:"Dr. Elena Vasquez"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required" example:"2026-09-03T10:30:00Z"`
}

// UpdateAppointmentStatusRequest is the JSON payload for status changes.
type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=scheduled completed cancelled" example:"completed"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListAppointmentsResponse contains a page of appointments plus metadata.
type ListAppointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
	Pagination   Pagination           `json:"pagination"`
}

//
// Handlers
//

// BookAppointment godoc
// @ID          bookAppointment
// @Summary     Book an appointment
// @Description Creates a new appointment room between a patient and a doctor.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.BookAppointmentRequest  true  "Appointment payload"
// @Success     201   {object}  domain.Appointment
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments [post]
func (h *Handlers) BookAppointment(c *gin.Context) {
	var req BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "patient_name, doctor_name and scheduled_at required")
		return
	}

	a, err := h.apptSvc.Book(c.Request.Context(), req.PatientName, req.DoctorName, req.ScheduledAt)
	if err != nil {
		switch err {
		case services.ErrEmptyParticipant:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participant names must not be blank")
		case services.ErrInvalidSchedule:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scheduled_at must be a valid time")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeBookFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, a)
}

// ListAppointments godoc
// @ID          listAppointments
// @Summary     List appointments
// @Description Returns a paginated list of appointment rooms.
// @Tags        Appointments
// @Produce     json
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListAppointmentsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments [get]
func (h *Handlers) ListAppointments(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), 20)
	page, pageSize = utils.ClampPage(page, pageSize, 20, 100)

	items, total, err := h.apptSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListAppointmentsResponse{
		Appointments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetAppointment godoc
// @ID          getAppointment
// @Summary     Fetch an appointment
// @Tags        Appointments
// @Produce     json
// @Param       id  path      string  true  "Appointment ID (UUID)"  format(uuid)
// @Success     200 {object}  domain.Appointment
// @Failure     400 {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404 {object}  handlers.ErrorResponse  "Appointment not found"
// @Router      /appointments/{id} [get]
func (h *Handlers) GetAppointment(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}

	a, err := h.apptSvc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		return
	}
	ok(c, http.StatusOK, a)
}

// UpdateAppointmentStatus godoc
// @ID          updateAppointmentStatus
// @Summary     Update appointment status
// @Description Transitions an appointment to scheduled, completed, or cancelled.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Appointment ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateAppointmentStatusRequest  true  "Status payload"
// @Success     204   "Updated"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Appointment not found"
// @Router      /appointments/{id}/status [put]
func (h *Handlers) UpdateAppointmentStatus(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}

	var req UpdateAppointmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be scheduled, completed, or cancelled")
		return
	}

	if err := h.apptSvc.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		switch err {
		case services.ErrRoomNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		case services.ErrInvalidStatus:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be scheduled, completed, or cancelled")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
