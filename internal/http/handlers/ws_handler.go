// Websocket upgrade handler.
//
// GET /ws/appointments/{id} upgrades the connection and subscribes it to
// the appointment's live stream. The room must exist before the upgrade;
// after it, the hub owns the connection and the HTTP layer steps aside.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/careward/hospital-chat/internal/http/middleware"
	"github.com/careward/hospital-chat/internal/hub"
)

// streamUpgrader performs the websocket handshake. Origin checking is
// delegated to the CORS layer; browsers that pass CORS may also stream.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves the live message stream for one appointment room.
type StreamHandler struct {
	apptSvc AppointmentService
	hub     *hub.Hub
}

// NewStreamHandler constructs a StreamHandler bound to the given service
// and hub.
func NewStreamHandler(apptSvc AppointmentService, h *hub.Hub) *StreamHandler {
	return &StreamHandler{apptSvc: apptSvc, hub: h}
}

// Subscribe godoc
// @ID          streamAppointment
// @Summary     Subscribe to an appointment's live message stream
// @Description Upgrades to a websocket delivering message_received and
// @Description message_deleted events for the appointment.
// @Tags        Stream
// @Param       id  path  string  true  "Appointment ID (UUID)"  format(uuid)
// @Success     101  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Appointment not found"
// @Router      /ws/appointments/{id} [get]
func (s *StreamHandler) Subscribe(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "appointment id must be a UUID")
		return
	}
	if _, err := s.apptSvc.Get(c.Request.Context(), roomID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own response.
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("room_id", roomID).Msg("stream upgrade failed")
		return
	}

	s.hub.Serve(conn, roomID, middleware.StreamOpened())
}
