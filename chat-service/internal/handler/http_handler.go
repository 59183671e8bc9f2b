package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/service"
	"github.com/Karthikchakala/HospitalManagement/pkg/jwt"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
	"github.com/Karthikchakala/HospitalManagement/pkg/response"
)

// HTTPHandler serves the REST side of the chat: counterpart lists and
// paged history for authenticated patients and doctors.
type HTTPHandler struct {
	directory  repository.DirectoryRepository
	history    *service.HistoryLoader
	principals *service.PrincipalResolver
	chatCfg    config.ChatConfig
}

func NewHTTPHandler(directory repository.DirectoryRepository, history *service.HistoryLoader, principals *service.PrincipalResolver, chatCfg config.ChatConfig) *HTTPHandler {
	if chatCfg.HistoryPageSize <= 0 {
		chatCfg.HistoryPageSize = 50
	}
	if chatCfg.HistoryMaxPage < chatCfg.HistoryPageSize {
		chatCfg.HistoryMaxPage = chatCfg.HistoryPageSize
	}
	return &HTTPHandler{
		directory:  directory,
		history:    history,
		principals: principals,
		chatCfg:    chatCfg,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth *middleware.AuthMiddleware) {
	api := r.Group("/api")

	patient := api.Group("/patient/chat", auth.RequireAuth(jwt.RolePatient))
	{
		patient.GET("/doctors", h.ListDoctors)
		patient.GET("/appointments", h.ListAppointments)
	}

	doctor := api.Group("/doctor/chat", auth.RequireAuth(jwt.RoleDoctor))
	{
		doctor.GET("/patients", h.ListPatients)
	}

	api.GET("/chat/messages", auth.RequireAuth(jwt.RolePatient, jwt.RoleDoctor), h.GetMessages)
}

// principal resolves the caller set by the auth middleware. It writes the
// error response itself and returns nil when the caller cannot chat.
func (h *HTTPHandler) principal(c *gin.Context) *domain.Principal {
	p, err := h.principals.ForUser(c.Request.Context(), middleware.GetUserID(c), middleware.GetRole(c))
	if err == nil {
		return p
	}

	switch {
	case errors.Is(err, service.ErrNoDomainRecord):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrUnsupportedRole), errors.Is(err, domain.ErrUnauthorized):
		response.Forbidden(c, err.Error())
	default:
		response.Internal(c, err, "failed to resolve user")
	}
	return nil
}

func (h *HTTPHandler) ListDoctors(c *gin.Context) {
	p := h.principal(c)
	if p == nil {
		return
	}

	doctors, err := h.directory.ChatDoctorsForPatient(c.Request.Context(), p.ID)
	if err != nil {
		response.Internal(c, err, "failed to list doctors")
		return
	}
	response.OK(c, gin.H{"patient_id": p.ID, "doctors": doctors})
}

func (h *HTTPHandler) ListAppointments(c *gin.Context) {
	p := h.principal(c)
	if p == nil {
		return
	}

	// doctorId narrows the list to one doctor; without it every appointment
	// of the patient is returned.
	var doctorID int64
	if s, ok := c.GetQuery("doctorId"); ok && s != "" {
		id := domain.ParseID(s)
		if !id.Valid {
			response.BadRequest(c, "doctorId must be a positive integer")
			return
		}
		doctorID = id.Value
	}

	appts, err := h.directory.PatientAppointments(c.Request.Context(), p.ID, doctorID)
	if err != nil {
		response.Internal(c, err, "failed to list appointments")
		return
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}
	response.OK(c, gin.H{"appointments": appts})
}

func (h *HTTPHandler) ListPatients(c *gin.Context) {
	p := h.principal(c)
	if p == nil {
		return
	}

	patients, err := h.directory.ChatPatientsForDoctor(c.Request.Context(), p.ID)
	if err != nil {
		response.Internal(c, err, "failed to list patients")
		return
	}
	response.OK(c, gin.H{"doctor_id": p.ID, "patients": patients})
}

// GetMessages returns a page of a room's history. The room is addressed
// with the same fields a websocket join uses, as query parameters.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	p := h.principal(c)
	if p == nil {
		return
	}

	payload := domain.JoinPayload{
		ChatContext:     c.Query("chatContext"),
		AppointmentType: c.Query("appointmentType"),
		AppointmentID:   domain.ParseID(c.Query("appointmentId")),
		PatientID:       domain.ParseID(c.Query("patientId")),
		DoctorID:        domain.ParseID(c.Query("doctorId")),
	}

	f, err := domain.FilterFor(payload)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, domain.ErrCodeInvalidContext, err.Error())
		return
	}
	if err := p.Authorize(payload); err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	limit := h.chatCfg.HistoryPageSize
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, h.chatCfg.HistoryMaxPage)
	}
	var before int64
	if s := c.Query("before"); s != "" {
		id := domain.ParseID(s)
		if !id.Valid {
			response.BadRequest(c, "before must be a message id")
			return
		}
		before = id.Value
	}

	page, err := h.history.LoadPage(c.Request.Context(), f, before, limit)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoom, f.Key.String()).Msg("failed to load chat history")
		response.Fail(c, http.StatusInternalServerError, domain.ErrCodePersistence, "failed to load chat history")
		return
	}

	response.OK(c, gin.H{
		"room":        f.Key,
		"messages":    page.Messages,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}
